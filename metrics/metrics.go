// Package metrics contains all client-side metrics
package metrics

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	streamReconnects      = metrics.NewCounter("mevshare_stream_reconnects_total")
	streamMalformedEvents = metrics.NewCounter("mevshare_stream_malformed_events_total")
	simBlocksWaited       = metrics.NewCounter("mevshare_sim_blocks_waited_total")
	simInclusionTimeouts  = metrics.NewCounter("mevshare_sim_inclusion_timeouts_total")
	simTxLookups          = metrics.NewCounter("mevshare_sim_tx_lookups_total")
	publishedEvents       = metrics.NewCounter("mevshare_events_published_total")
	publishFailures       = metrics.NewCounter("mevshare_events_publish_failures_total")
)

const (
	rpcDurationLabel = `mevshare_rpc_duration_milliseconds{method="%s"}`
	rpcFailuresLabel = `mevshare_rpc_failures_total{method="%s",kind="%s"}`
	streamEventLabel = `mevshare_stream_events_total{kind="%s"}`
)

func RecordRPCDuration(method string, duration time.Duration) {
	metrics.GetOrCreateSummary(fmt.Sprintf(rpcDurationLabel, method)).Update(float64(duration.Milliseconds()))
}

// IncRPCFailure counts a failed call, kind is either "relay" or "transport".
func IncRPCFailure(method, kind string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(rpcFailuresLabel, method, kind)).Inc()
}

func IncStreamEvent(kind string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(streamEventLabel, kind)).Inc()
}

func IncStreamReconnects() {
	streamReconnects.Inc()
}

func IncStreamMalformedEvents() {
	streamMalformedEvents.Inc()
}

func IncSimBlocksWaited() {
	simBlocksWaited.Inc()
}

func IncSimInclusionTimeouts() {
	simInclusionTimeouts.Inc()
}

func IncSimTxLookups() {
	simTxLookups.Inc()
}

func IncPublishedEvents() {
	publishedEvents.Inc()
}

func IncPublishFailures() {
	publishFailures.Inc()
}
