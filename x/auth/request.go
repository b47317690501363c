package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const requestDomain = "harberger-ledger/request/v1"

// Request is everything a caller's signature commits to.
type Request struct {
	Method string
	// Target is the request path plus any query, as sent on the wire.
	Target string
	Nonce  uint64
	Expiry time.Time
	Body   []byte
}

// Payload is the byte string that gets hashed and signed.
func (r Request) Payload() []byte {
	head := fmt.Sprintf("%s\n%s\n%s\n%d\n%d\n", requestDomain, r.Method, r.Target, r.Nonce, r.Expiry.Unix())
	out := make([]byte, 0, len(head)+len(r.Body))
	out = append(out, head...)
	return append(out, r.Body...)
}

// ReadRequest assembles the signed view of an incoming request. The body
// has already been drained by the caller.
func (c Config) ReadRequest(r *http.Request, body []byte) (Request, []byte, error) {
	raw := r.Header.Get(c.SignatureHeader)
	if raw == "" {
		return Request{}, nil, fmt.Errorf("%w: %s header is required", ErrMissingHeader, c.SignatureHeader)
	}
	sig, err := hexutil.Decode(raw)
	if err != nil {
		return Request{}, nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	nonce, err := strconv.ParseUint(r.Header.Get(c.NonceHeader), 10, 64)
	if err != nil {
		return Request{}, nil, fmt.Errorf("%w: %s must be a decimal uint64", ErrMissingHeader, c.NonceHeader)
	}
	expiry, err := strconv.ParseInt(r.Header.Get(c.ExpiryHeader), 10, 64)
	if err != nil {
		return Request{}, nil, fmt.Errorf("%w: %s must be unix seconds", ErrMissingHeader, c.ExpiryHeader)
	}
	return Request{
		Method: r.Method,
		Target: r.URL.RequestURI(),
		Nonce:  nonce,
		Expiry: time.Unix(expiry, 0).UTC(),
		Body:   body,
	}, sig, nil
}

// SetHeaders attaches sig and the replay fields of req to h.
func (c Config) SetHeaders(h http.Header, req Request, sig []byte) {
	h.Set(c.SignatureHeader, hexutil.Encode(sig))
	h.Set(c.NonceHeader, strconv.FormatUint(req.Nonce, 10))
	h.Set(c.ExpiryHeader, strconv.FormatInt(req.Expiry.Unix(), 10))
}
