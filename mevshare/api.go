package mevshare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flashbots/mev-share-client-go/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseSize    = 10 * 1024 * 1024
)

var errEmptyResponse = errors.New("response has neither result nor error")

// ApiClient posts signed JSON-RPC envelopes to the relay.
// A call is made exactly once, failures are returned to the caller.
type ApiClient struct {
	log *zap.Logger

	url     string
	client  *http.Client
	limiter *rate.Limiter
}

type ApiClientOption func(*ApiClient)

func WithHTTPClient(client *http.Client) ApiClientOption {
	return func(c *ApiClient) {
		c.client = client
	}
}

// WithRateLimit limits outgoing calls, by default calls are not limited.
func WithRateLimit(limit rate.Limit, burst int) ApiClientOption {
	return func(c *ApiClient) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

func NewApiClient(log *zap.Logger, url string, opts ...ApiClientOption) *ApiClient {
	c := &ApiClient{
		log:    log.Named("api"),
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends req and returns the raw result of the call.
// Relay side errors are returned as *RelayError, everything else as *TransportError.
func (c *ApiClient) Post(ctx context.Context, req *SignedRequest) (json.RawMessage, error) {
	startAt := time.Now()
	res, err := c.post(ctx, req)
	metrics.RecordRPCDuration(req.Method, time.Since(startAt))

	if err != nil {
		kind := "transport"
		if errors.Is(err, ErrRelayRejected) {
			kind = "relay"
		}
		metrics.IncRPCFailure(req.Method, kind)
		c.log.Debug("Relay call failed", zap.String("method", req.Method), zap.Error(err))
		return nil, err
	}
	c.log.Debug("Relay call", zap.String("method", req.Method), zap.Duration("duration", time.Since(startAt)))
	return res, nil
}

func (c *ApiClient) post(ctx context.Context, req *SignedRequest) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, newTransportError(err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, newTransportError(err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newTransportError(err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, newTransportError(fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}
	if rpcResp.Error != nil {
		return nil, &RelayError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if len(rpcResp.Result) == 0 {
		return nil, newTransportError(fmt.Errorf("status %d: %w", resp.StatusCode, errEmptyResponse))
	}
	return rpcResp.Result, nil
}

// Call signs params for method, posts them and decodes the result into out.
func (c *ApiClient) Call(ctx context.Context, signer *RequestSigner, out any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	req, err := signer.Sign(ctx, params, method)
	if err != nil {
		return err
	}
	res, err := c.Post(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return newTransportError(err)
	}
	return nil
}
