// Package mevshare implements a client for a mev-share relay
// Here is a full flow of data through the client:
//
// Client -> RequestSigner signs the canonical JSON-RPC envelope
// Client -> ApiClient posts it to the relay:
//   - private transaction
//   - mev share bundle
//   - bundle simulation
//
// EventStream -> ClassifyEvent turns stream hints into transactions and bundles
// EventStream -> EventHandler is called for every event in arrival order
//
// BundleSimulator -> ChainProvider is used to wait for a backrun target to be mined
// BundleSimulator -> SimulationBackend is used to do simulation
package mevshare
