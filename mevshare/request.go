package mevshare

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	FlashbotsSignatureHeader = "X-Flashbots-Signature"

	rpcRequestID = 69
	rpcVersion   = "2.0"
)

// rpcEnvelope field order is part of the signed bytes, do not reorder.
type rpcEnvelope struct {
	Params  any    `json:"params"`
	Method  string `json:"method"`
	ID      int    `json:"id"`
	JSONRPC string `json:"jsonrpc"`
}

// SignedRequest is a serialized envelope together with the headers that authenticate it.
type SignedRequest struct {
	Method string
	Header http.Header
	Body   []byte
}

// CanonicalEnvelope serializes the request envelope to the exact bytes that are signed and sent.
// Output matches JSON.stringify: fields in declaration order, no HTML escaping, no trailing newline.
func CanonicalEnvelope(params any, method string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(rpcEnvelope{
		Params:  params,
		Method:  method,
		ID:      rpcRequestID,
		JSONRPC: rpcVersion,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// bodyDigest is keccak256(body) as a 0x-prefixed lowercase hex string.
// The hex string itself, not the raw hash, is what gets personal-signed.
func bodyDigest(body []byte) string {
	return crypto.Keccak256Hash(body).Hex()
}

type RequestSigner struct {
	signer Signer
}

func NewRequestSigner(signer Signer) *RequestSigner {
	return &RequestSigner{signer: signer}
}

// Sign builds the envelope for method and computes its authentication header.
// Errors from the Signer are returned unchanged.
func (r *RequestSigner) Sign(ctx context.Context, params any, method string) (*SignedRequest, error) {
	body, err := CanonicalEnvelope(params, method)
	if err != nil {
		return nil, err
	}
	sig, err := r.signer.SignMessage(ctx, []byte(bodyDigest(body)))
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set(FlashbotsSignatureHeader, r.signer.Address().Hex()+":"+hexutil.Encode(sig))
	return &SignedRequest{
		Method: method,
		Header: header,
		Body:   body,
	}, nil
}
