package mevshare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	historyInfoPath = "api/v1/history/info"
	historyPath     = "api/v1/history"
)

// HistoryClient reads past stream events from the history endpoints of the stream server.
type HistoryClient struct {
	log *zap.Logger

	baseURL string
	client  *http.Client
}

func NewHistoryClient(log *zap.Logger, streamURL string, client *http.Client) *HistoryClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HistoryClient{
		log:     log.Named("history"),
		baseURL: strings.TrimSuffix(streamURL, "/") + "/",
		client:  client,
	}
}

func (h *HistoryClient) GetEventHistoryInfo(ctx context.Context) (*EventHistoryInfo, error) {
	var info EventHistoryInfo
	if err := h.get(ctx, h.baseURL+historyInfoPath, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetEventHistory returns past events matching params, params may be nil.
func (h *HistoryClient) GetEventHistory(ctx context.Context, params *EventHistoryParams) ([]EventHistoryEntry, error) {
	u := h.baseURL + historyPath
	if q := params.query().Encode(); q != "" {
		u += "?" + q
	}
	var entries []EventHistoryEntry
	if err := h.get(ctx, u, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (h *HistoryClient) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return newTransportError(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return newTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		h.log.Debug("History request failed", zap.String("url", u), zap.Int("status", resp.StatusCode))
		return newTransportError(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newTransportError(err)
	}
	return nil
}

func (p *EventHistoryParams) query() url.Values {
	q := url.Values{}
	if p == nil {
		return q
	}
	set := func(key string, v uint64) {
		if v != 0 {
			q.Set(key, strconv.FormatUint(v, 10))
		}
	}
	set("blockStart", p.BlockStart)
	set("blockEnd", p.BlockEnd)
	set("timestampStart", p.TimestampStart)
	set("timestampEnd", p.TimestampEnd)
	set("limit", p.Limit)
	set("offset", p.Offset)
	return q
}
