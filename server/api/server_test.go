package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/harberger/server/api/middleware"
)

func TestServer_MiddlewareChainOrder(t *testing.T) {
	s := NewServer(DefaultConfig(), zerolog.Nop())

	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	s.Use(mark("first"))
	s.Use(mark("second"))
	s.Router.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	s := NewServer(DefaultConfig(), zerolog.Nop())
	s.Use(middleware.RequestID())
	s.Router.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusConflict, "not_available", "locked", map[string]any{"slot": 1})
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error struct {
			Code      string         `json:"code"`
			Message   string         `json:"message"`
			RequestID string         `json:"request_id"`
			Details   map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "not_available", body.Error.Code)
	require.Equal(t, "req-1", body.Error.RequestID)
	require.EqualValues(t, 1, body.Error.Details["slot"])
}

func TestServer_CORS(t *testing.T) {
	s := NewServer(DefaultConfig(), zerolog.Nop())
	s.EnableCORS()
	s.Router.HandleFunc("/x", func(w http.ResponseWriter, _ *http.Request) {}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_UnknownRouteAndMethod(t *testing.T) {
	s := NewServer(DefaultConfig(), zerolog.Nop())
	s.Router.HandleFunc("/only-get", func(w http.ResponseWriter, _ *http.Request) {}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "route_not_found", body.Error.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/only-get", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "method_not_allowed", body.Error.Code)
}
