package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/harberger/x/auth"
)

// CallerKey is the context key for the authenticated caller address.
const CallerKey contextKey = "caller"

// callerSlotKey lets an outer middleware observe the caller resolved further in.
const callerSlotKey contextKey = "caller-slot"

func withCallerSlot(ctx context.Context, slot *string) context.Context {
	return context.WithValue(ctx, callerSlotKey, slot)
}

// ErrorWriter renders a middleware rejection.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

// Caller resolves the identity behind mutating requests. With signing
// enabled the caller is the address recovered from a signature binding the
// method, target, nonce, expiry and body; each nonce is admitted once per
// caller. Otherwise the caller is read from the caller header. Safe methods
// pass through untouched.
func Caller(cfg auth.Config, verifier auth.Verifier, maxBody int64, onError ErrorWriter) func(http.Handler) http.Handler {
	var guard *auth.NonceGuard
	if cfg.Enabled {
		guard = auth.NewNonceGuard(cfg.MaxValidity, cfg.NonceCapacity, time.Now)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					onError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
					return
				}
				onError(w, r, http.StatusBadRequest, "bad_request", "failed to read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var caller common.Address
			if cfg.Enabled {
				if r.Header.Get(cfg.SignatureHeader) == "" {
					onError(w, r, http.StatusUnauthorized, "missing_signature", cfg.SignatureHeader+" header is required")
					return
				}
				req, sig, err := cfg.ReadRequest(r, body)
				if err != nil {
					code := "invalid_auth_headers"
					if errors.Is(err, auth.ErrInvalidSignature) {
						code = "invalid_signature"
					}
					onError(w, r, http.StatusUnauthorized, code, err.Error())
					return
				}
				caller, err = auth.RecoverRequest(verifier, req, sig)
				if err != nil {
					onError(w, r, http.StatusUnauthorized, "invalid_signature", err.Error())
					return
				}
				if err := guard.Accept(caller, req.Nonce, req.Expiry); err != nil {
					status, code := replayStatus(err)
					onError(w, r, status, code, err.Error())
					return
				}
			} else {
				raw := r.Header.Get(cfg.CallerHeader)
				if !common.IsHexAddress(raw) {
					onError(w, r, http.StatusUnauthorized, "missing_caller", cfg.CallerHeader+" header must be an address")
					return
				}
				caller = common.HexToAddress(raw)
			}

			if slot, ok := r.Context().Value(callerSlotKey).(*string); ok {
				*slot = caller.Hex()
			}
			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func replayStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrNonceReused):
		return http.StatusConflict, "nonce_reused"
	case errors.Is(err, auth.ErrNonceCapacity):
		return http.StatusServiceUnavailable, "nonce_capacity"
	case errors.Is(err, auth.ErrExpiryTooFar):
		return http.StatusUnauthorized, "expiry_too_far"
	default:
		return http.StatusUnauthorized, "request_expired"
	}
}

// CallerFrom returns the caller resolved by Caller.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(CallerKey).(common.Address)
	return caller, ok
}
