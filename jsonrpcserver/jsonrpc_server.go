// Package jsonrpcserver allows exposing functions like:
// func Foo(context, int) (int, error)
// as JSON RPC methods of a relay-like endpoint
//
// Requests can be authenticated with the X-Flashbots-Signature header, the verified
// signer is then available to methods through GetSigner.
package jsonrpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

var (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeCustomError    = -32000
)

const (
	SignatureHeader = "X-Flashbots-Signature"

	maxRequestBodySize = 10 * 1024 * 1024
)

type signerKey struct{}

type JSONRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      any               `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type JSONRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      any              `json:"id"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError    `json:"error,omitempty"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *any   `json:"data,omitempty"`
}

// Error lets a method choose the error code sent to the caller,
// any other error is sent with CodeCustomError.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// SignatureVerifier returns the address that signed body with the given header value.
type SignatureVerifier func(header string, body []byte) (common.Address, error)

type Handler struct {
	methods  map[string]method
	verifier SignatureVerifier
}

type Methods map[string]interface{}

type Option func(*Handler)

// WithSignatureVerifier rejects requests that are not signed with a valid X-Flashbots-Signature.
func WithSignatureVerifier(verifier SignatureVerifier) Option {
	return func(h *Handler) {
		h.verifier = verifier
	}
}

// NewHandler creates JSONRPC http.Handler from the map that maps method names to method functions
// each method function must:
// - have context as a first argument
// - return error as a last argument
// - have argument types that can be unmarshalled from JSON
// - have return types that can be marshalled to JSON
func NewHandler(methods Methods, opts ...Option) (*Handler, error) {
	h := &Handler{
		methods: make(map[string]method, len(methods)),
	}
	for name, fn := range methods {
		m, err := newMethod(fn)
		if err != nil {
			return nil, err
		}
		h.methods[name] = m
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func writeJSONRPCError(w http.ResponseWriter, id any, code int, msg string) {
	res := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: msg,
		},
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeJSONRPCError(w, nil, CodeParseError, err.Error())
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeJSONRPCError(w, nil, CodeParseError, err.Error())
		return
	}

	if req.JSONRPC != "2.0" {
		writeJSONRPCError(w, req.ID, CodeParseError, "invalid jsonrpc version")
		return
	}
	if req.ID != nil {
		// id must be string or number
		switch req.ID.(type) {
		case string, float64:
		default:
			writeJSONRPCError(w, req.ID, CodeParseError, "invalid id type")
			return
		}
	}

	ctx := r.Context()
	if h.verifier != nil {
		signer, err := h.verifier(r.Header.Get(SignatureHeader), body)
		if err != nil {
			writeJSONRPCError(w, req.ID, CodeInvalidRequest, err.Error())
			return
		}
		ctx = context.WithValue(ctx, signerKey{}, signer)
	}

	m, ok := h.methods[req.Method]
	if !ok {
		writeJSONRPCError(w, req.ID, CodeMethodNotFound, "method not found")
		return
	}

	result, err := m.call(ctx, req.Params)
	if err != nil {
		var codedErr *Error
		if errors.As(err, &codedErr) {
			writeJSONRPCError(w, req.ID, codedErr.Code, codedErr.Message)
			return
		}
		writeJSONRPCError(w, req.ID, CodeCustomError, err.Error())
		return
	}

	res := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  &result,
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetSigner returns the verified signer of the request, it is empty when signatures are not verified.
func GetSigner(ctx context.Context) common.Address {
	value, ok := ctx.Value(signerKey{}).(common.Address)
	if !ok {
		return common.Address{}
	}
	return value
}
