// Package httpserver provides the shared HTTP server shell for the
// settlement service binaries.
//
// BaseServer bundles the concerns every binary needs: request logging,
// health endpoints (/livez, /readyz), drain control for load balancers
// (/drain, /undrain), an optional Prometheus metrics listener, optional
// pprof, and graceful shutdown. Domain endpoints plug in through the
// RouteRegistrar interface:
//
//	handler := services.NewCallbackHandler(orchestrator, log)
//	srv, err := httpserver.New(cfg, handler)
//	if err != nil { ... }
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
