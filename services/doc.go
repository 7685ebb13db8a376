// Package services coordinates the auction lifecycle end to end.
//
// The Orchestrator is the top-level component: it creates auctions
// (sealing the reserve price for the MPC engine), accepts bids (sealing
// bid amounts), triggers settlement computations on-chain, and ingests
// the signed settlement callbacks the MPC cluster delivers over HTTP.
//
// Callback ingestion runs a fixed pipeline, short-circuiting on the
// first failure:
//
//	parse frame → verify payload signature → decode by kind → apply
//
// Nothing mutates state until the apply step, so a rejected callback has
// no partial effects and the transport may safely redeliver the same
// bytes — the settlement engine's idempotency guard absorbs duplicates.
//
// The on-chain program and the MPC transport are external collaborators
// behind the ChainClient interface. The only blocking operation in this
// package is AwaitFinalization, which is always bounded by a caller
// timeout and cancellable through the context with no side effects.
//
// CallbackHandler exposes the ingestion pipeline plus read endpoints on
// a chi router; it is mounted by api/httpserver's BaseServer.
package services
