// Package api provides the HTTP surface of the AdvisorPro session core.
//
// It exposes signup, login, refresh and logout under /api/v1/auth, a
// small set of role-gated workspace endpoints, and the /health and
// /metrics probes. Sessions travel in two HttpOnly cookies: a short-lived
// access token and a rotating refresh credential.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
