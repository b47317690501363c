package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	apicommon "github.com/compose-network/harberger/server/api"
	"github.com/compose-network/harberger/server/api/middleware"
	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/auth"
	"github.com/compose-network/harberger/x/journal"
	"github.com/compose-network/harberger/x/ledger"
)

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000a0a0a")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type fixture struct {
	handler http.Handler
	bank    *asset.Bank
	ledger  *ledger.Ledger
	advance func(time.Duration)
}

func newFixture(t *testing.T, authCfg auth.Config) *fixture {
	t.Helper()

	var (
		mu  sync.Mutex
		now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	bank := asset.NewBank(zerolog.Nop(), nil)
	require.NoError(t, bank.Mint(asset.Native, alice, uint256.NewInt(1_000_000)))
	require.NoError(t, bank.Mint(asset.Native, bob, uint256.NewInt(1_000_000)))

	events := journal.NewMemoryManager()
	cfg := ledger.DefaultConfig(authority)
	cfg.Now = clock
	cfg.Sink = events
	l, err := ledger.New(cfg, bank)
	require.NoError(t, err)

	r := mux.NewRouter()
	NewHandler(l, events, bank, zerolog.Nop()).RegisterMux(r)

	onError := func(w http.ResponseWriter, r *http.Request, status int, code, message string) {
		apicommon.WriteError(w, r, status, code, message, nil)
	}
	h := middleware.RequestID()(middleware.Caller(authCfg, auth.NewKeyVerifier(), 1<<16, onError)(r))

	return &fixture{
		handler: h,
		bank:    bank,
		ledger:  l,
		advance: func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		},
	}
}

func headerAuth() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.Enabled = false
	return cfg
}

func (f *fixture) do(t *testing.T, method, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != nil {
		req.Header.Set("X-Caller", caller.Hex())
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHandler_ClaimBidAndRead(t *testing.T) {
	f := newFixture(t, headerAuth())

	rec := f.do(t, http.MethodPost, "/v1/slots/0/claim", &alice, map[string]string{
		"content":   "ipfs://banner",
		"currency":  "native",
		"new_price": "1000",
		"funds":     "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[claimResp](t, rec)
	require.Equal(t, uint64(1), created.ID)

	rec = f.do(t, http.MethodGet, "/v1/slots/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slot := decode[slotResp](t, rec)
	require.Equal(t, "ipfs://banner", slot.Content)
	require.Equal(t, alice.Hex(), slot.Holder)
	require.Equal(t, "1000", slot.Deposit)
	require.NotNil(t, slot.BiddableAt)

	f.advance(365 * 24 * time.Hour)

	rec = f.do(t, http.MethodGet, "/v1/slots/1/owed", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", decode[map[string]any](t, rec)["owed"])

	rec = f.do(t, http.MethodPost, "/v1/slots/1/claim", &bob, map[string]string{
		"content":                "ipfs://other",
		"declared_current_price": "1000",
		"new_price":              "1100",
		"funds":                  "1100",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bid := decode[claimResp](t, rec)
	require.Equal(t, "10", bid.TaxPaid)
	require.Equal(t, "990", bid.Refunded)

	rec = f.do(t, http.MethodGet, "/v1/slots", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Slots []slotResp `json:"slots"`
	}](t, rec)
	require.Len(t, list.Slots, 1)
	require.Equal(t, bob.Hex(), list.Slots[0].Holder)

	rec = f.do(t, http.MethodGet, "/v1/balances/native/"+authority.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", decode[map[string]any](t, rec)["balance"])

	rec = f.do(t, http.MethodGet, "/v1/events?since=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evs := decode[struct {
		Events []eventResp `json:"events"`
	}](t, rec)
	require.Len(t, evs.Events, 2)
	require.Equal(t, "collected", evs.Events[0].Kind)
	require.Equal(t, "claimed", evs.Events[1].Kind)
	require.Equal(t, uint64(3), evs.Events[1].Seq)
}

func TestHandler_ErrorMapping(t *testing.T) {
	f := newFixture(t, headerAuth())
	rec := f.do(t, http.MethodPost, "/v1/slots/0/claim", &alice, map[string]string{"new_price": "100", "funds": "100"})
	require.Equal(t, http.StatusCreated, rec.Code)

	cases := []struct {
		name   string
		method string
		path   string
		caller *common.Address
		body   any
		status int
		code   string
	}{
		{"locked", http.MethodPost, "/v1/slots/1/claim", &bob,
			map[string]string{"declared_current_price": "100", "new_price": "200", "funds": "200"},
			http.StatusConflict, "not_available"},
		{"bad amount", http.MethodPost, "/v1/slots/1/claim", &bob,
			map[string]string{"new_price": "-1", "funds": "1"}, http.StatusBadRequest, "invalid_request"},
		{"first deposit mismatch", http.MethodPost, "/v1/slots/0/claim", &bob,
			map[string]string{"new_price": "10", "funds": "9"}, http.StatusUnprocessableEntity, "invalid_new_price"},
		{"creation sentinel read", http.MethodGet, "/v1/slots/0", nil, nil, http.StatusNotFound, "slot_not_found"},
		{"collect unallocated", http.MethodPost, "/v1/slots/9/collect", &authority, nil, http.StatusNotFound, "slot_not_found"},
		{"remove unallocated", http.MethodPost, "/v1/slots/9/remove", &authority, nil, http.StatusNotFound, "slot_not_found"},
		{"bid unallocated", http.MethodPost, "/v1/slots/9/claim", &bob,
			map[string]string{"declared_current_price": "0", "new_price": "10", "funds": "10"},
			http.StatusNotFound, "slot_not_found"},
		{"bad slot id", http.MethodGet, "/v1/slots/abc", nil, nil, http.StatusBadRequest, "invalid_slot_id"},
		{"not authority", http.MethodPost, "/v1/slots/1/collect", &alice, nil, http.StatusForbidden, "unauthorized"},
		{"no caller", http.MethodPost, "/v1/collect", nil, nil, http.StatusUnauthorized, "missing_caller"},
		{"insufficient funds", http.MethodPost, "/v1/slots/0/claim", &bob,
			map[string]string{"new_price": "5000000", "funds": "5000000"}, http.StatusPaymentRequired, "transfer_failed"},
		{"native cannot be removed", http.MethodPost, "/v1/currencies", &authority,
			map[string]any{"currency": "native", "allowed": false}, http.StatusUnprocessableEntity, "invalid_currency"},
		{"bad authority", http.MethodPost, "/v1/authority", &authority,
			map[string]string{"authority": "nope"}, http.StatusBadRequest, "invalid_authority"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.caller, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, decode[errorBody](t, rec).Error.Code)
		})
	}
}

func TestHandler_UnallocatedSlotReadsAsEmpty(t *testing.T) {
	f := newFixture(t, headerAuth())

	rec := f.do(t, http.MethodGet, "/v1/slots/9", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	slot := decode[slotResp](t, rec)
	require.Equal(t, uint64(9), slot.ID)
	require.Equal(t, common.Address{}.Hex(), slot.Holder)
	require.Equal(t, "native", slot.Currency)
	require.Equal(t, "0", slot.Price)
	require.False(t, slot.Foreclosable)
	require.Nil(t, slot.BiddableAt)

	rec = f.do(t, http.MethodGet, "/v1/slots/9/owed", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0", decode[map[string]any](t, rec)["owed"])
}

func TestHandler_AdminRoutes(t *testing.T) {
	f := newFixture(t, headerAuth())
	rec := f.do(t, http.MethodPost, "/v1/slots/0/claim", &alice, map[string]string{"new_price": "1000", "funds": "1000"})
	require.Equal(t, http.StatusCreated, rec.Code)
	f.advance(365 * 24 * time.Hour)

	rec = f.do(t, http.MethodPost, "/v1/collect", &authority, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	all := decode[struct {
		Results []collectResp `json:"results"`
	}](t, rec)
	require.Len(t, all.Results, 1)
	require.Equal(t, "10", all.Results[0].Collected)

	rec = f.do(t, http.MethodPost, "/v1/slots/1/collect", &authority, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0", decode[collectResp](t, rec).Collected)

	rec = f.do(t, http.MethodPost, "/v1/slots/1/remove", &authority, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	removed := decode[removeResp](t, rec)
	require.Equal(t, alice.Hex(), removed.Holder)
	require.Equal(t, "990", removed.Refunded)

	token := common.HexToAddress("0x00000000000000000000000000000000000070c0")
	rec = f.do(t, http.MethodPost, "/v1/currencies", &authority, map[string]any{"currency": token.Hex(), "allowed": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/authority", &authority, map[string]string{"authority": bob.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/params", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	params := decode[paramsResp](t, rec)
	require.Equal(t, bob.Hex(), params.Authority)
	require.Equal(t, []string{"native", asset.TokenCurrency(token).String()}, params.AllowedCurrencies)
	require.Equal(t, uint64(2), params.NextID)
}

func TestHandler_SignedRequests(t *testing.T) {
	f := newFixture(t, auth.DefaultConfig())
	signer, err := auth.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, f.bank.Mint(asset.Native, signer.Address(), uint256.NewInt(500)))

	signed := func(target string, nonce uint64, body []byte) *http.Request {
		req := auth.Request{
			Method: http.MethodPost,
			Target: target,
			Nonce:  nonce,
			Expiry: time.Now().Add(time.Minute),
			Body:   body,
		}
		sig, err := signer.SignRequest(req)
		require.NoError(t, err)
		r := httptest.NewRequest(req.Method, target, bytes.NewReader(body))
		auth.DefaultConfig().SetHeaders(r.Header, req, sig)
		return r
	}

	body := []byte(`{"content":"signed","new_price":"100","funds":"100"}`)
	claim := signed("/v1/slots/0/claim", 1, body)
	replay := claim.Clone(claim.Context())
	replay.Body = io.NopCloser(bytes.NewReader(body))

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, claim)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	s, err := f.ledger.Slot(1)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), s.Holder)

	// the same signed create cannot open a second slot
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, replay)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "nonce_reused", decode[errorBody](t, rec).Error.Code)
	require.Equal(t, ledger.SlotID(2), f.ledger.Params().NextID)
	require.Equal(t, uint64(400), f.bank.Balance(asset.Native, signer.Address()).Uint64())

	// a fresh nonce is a fresh request
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, signed("/v1/slots/0/claim", 2, body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, ledger.SlotID(3), f.ledger.Params().NextID)

	// X-Caller is ignored once signatures are required
	rec = f.do(t, http.MethodPost, "/v1/collect", &authority, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "missing_signature", decode[errorBody](t, rec).Error.Code)
}
