// Package http exposes the slot ledger over a JSON HTTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/harberger/server/api"
	"github.com/compose-network/harberger/server/api/middleware"
	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/ledger"
)

// Service is the ledger surface served over HTTP.
type Service interface {
	Claim(ctx context.Context, req ledger.ClaimRequest) (ledger.ClaimResult, error)
	Collect(ctx context.Context, caller common.Address, id ledger.SlotID) (ledger.CollectResult, error)
	CollectAll(ctx context.Context, caller common.Address) ([]ledger.CollectResult, error)
	Remove(ctx context.Context, caller common.Address, id ledger.SlotID) (ledger.RemoveResult, error)
	SetAuthority(ctx context.Context, caller, next common.Address) error
	SetCurrencyAllowed(ctx context.Context, caller common.Address, c asset.Currency, allowed bool) error
	View(id ledger.SlotID) (ledger.SlotView, error)
	Owed(id ledger.SlotID) (*uint256.Int, error)
	Slots() []ledger.SlotView
	Params() ledger.Params
}

var _ Service = (*ledger.Ledger)(nil)

// EventReader serves committed events by sequence number.
type EventReader interface {
	ReadEntries(ctx context.Context, since uint64) ([]ledger.Event, error)
}

// BalanceReader reports asset balances.
type BalanceReader interface {
	Balance(c asset.Currency, holder common.Address) *uint256.Int
}

type Handler struct {
	ledger   Service
	events   EventReader
	balances BalanceReader
	log      zerolog.Logger
}

// NewHandler serves l. events and balances are optional; their routes are
// only registered when set.
func NewHandler(l Service, events EventReader, balances BalanceReader, log zerolog.Logger) *Handler {
	return &Handler{
		ledger:   l,
		events:   events,
		balances: balances,
		log:      log.With().Str("component", "ledger-http").Logger(),
	}
}

func (h *Handler) handleSlots(w http.ResponseWriter, _ *http.Request) {
	views := h.ledger.Slots()
	out := make([]slotResp, 0, len(views))
	for _, v := range views {
		out = append(out, toSlotResp(v))
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"slots": out})
}

func (h *Handler) handleSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.slotID(w, r)
	if !ok {
		return
	}
	v, err := h.ledger.View(id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, toSlotResp(v))
}

func (h *Handler) handleOwed(w http.ResponseWriter, r *http.Request) {
	id, ok := h.slotID(w, r)
	if !ok {
		return
	}
	owed, err := h.ledger.Owed(id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"id": uint64(id), "owed": owed.Dec()})
}

func (h *Handler) handleParams(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, toParamsResp(h.ledger.Params()))
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.slotID(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()

	var req claimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}
	claim, err := req.toClaim(id, caller)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	res, err := h.ledger.Claim(r.Context(), claim)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	status := http.StatusOK
	if id == ledger.NewSlotID {
		status = http.StatusCreated
	}
	apicommon.WriteJSON(w, status, claimResp{
		ID:         uint64(res.ID),
		TaxPaid:    res.TaxPaid.Dec(),
		Refunded:   res.Refunded.Dec(),
		Foreclosed: res.Foreclosed,
	})
}

func (h *Handler) handleCollect(w http.ResponseWriter, r *http.Request) {
	id, ok := h.slotID(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	res, err := h.ledger.Collect(r.Context(), caller, id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, toCollectResp(res))
}

func (h *Handler) handleCollectAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	results, err := h.ledger.CollectAll(r.Context(), caller)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	out := make([]collectResp, 0, len(results))
	for _, res := range results {
		out = append(out, toCollectResp(res))
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.slotID(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	res, err := h.ledger.Remove(r.Context(), caller, id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, removeResp{
		ID:        uint64(res.ID),
		Holder:    res.Holder.Hex(),
		Collected: res.Collected.Dec(),
		Refunded:  res.Refunded.Dec(),
	})
}

func (h *Handler) handleSetAuthority(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()

	var req authorityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}
	next, err := parseAddress("authority", req.Authority)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_authority", err.Error(), nil)
		return
	}

	if err := h.ledger.SetAuthority(r.Context(), caller, next); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"authority": next.Hex()})
}

func (h *Handler) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()

	var req currencyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}
	c, err := asset.ParseCurrency(req.Currency)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_currency", err.Error(), nil)
		return
	}

	if err := h.ledger.SetCurrencyAllowed(r.Context(), caller, c, req.Allowed); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"currency": c.String(), "allowed": req.Allowed})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since uint64
	if raw := q.Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_since", "expect an unsigned integer", nil)
			return
		}
		since = v
	}
	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_limit", "expect a positive integer", nil)
			return
		}
		limit = min(v, defaultEventLimit)
	}

	events, err := h.events.ReadEntries(r.Context(), since)
	if err != nil {
		h.log.Error().Err(err).Uint64("since", since).Msg("Failed to read events")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal_error", "failed to read events", nil)
		return
	}
	if len(events) > limit {
		events = events[:limit]
	}

	out := make([]eventResp, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResp(ev))
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, err := asset.ParseCurrency(vars["currency"])
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_currency", err.Error(), nil)
		return
	}
	holder, err := parseAddress("holder", vars["holder"])
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_holder", err.Error(), nil)
		return
	}

	apicommon.WriteJSON(w, http.StatusOK, map[string]any{
		"currency": c.String(),
		"holder":   holder.Hex(),
		"balance":  h.balances.Balance(c, holder).Dec(),
	})
}

func (h *Handler) slotID(w http.ResponseWriter, r *http.Request) (ledger.SlotID, bool) {
	id, err := parseSlotID(mux.Vars(r)["id"])
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_slot_id", err.Error(), nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		apicommon.WriteError(w, r, http.StatusUnauthorized, "missing_caller", "request is not authenticated", nil)
		return common.Address{}, false
	}
	return caller, true
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var le *ledger.Error
	if !errors.As(err, &le) {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Unexpected ledger failure")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}

	var details map[string]any
	if le.SlotID != 0 {
		details = map[string]any{"slot_id": uint64(le.SlotID)}
	}
	apicommon.WriteError(w, r, statusFor(le.Kind), le.Kind.String(), le.Error(), details)
}

func statusFor(kind ledger.ErrorKind) int {
	switch kind {
	case ledger.KindUnauthorized:
		return http.StatusForbidden
	case ledger.KindNotAvailable, ledger.KindNothingToCollect:
		return http.StatusConflict
	case ledger.KindInvalidCurrentPrice, ledger.KindInvalidNewPrice, ledger.KindInvalidCurrency:
		return http.StatusUnprocessableEntity
	case ledger.KindTransferFailed:
		return http.StatusPaymentRequired
	case ledger.KindSlotNotFound:
		return http.StatusNotFound
	case ledger.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
