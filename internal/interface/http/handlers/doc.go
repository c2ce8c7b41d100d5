// Package handlers contains the gin handlers, middleware and health checks of
// the journey API.
//
// # Journey endpoints
//
// JourneyHandler adapts HTTP requests to the application's command and query
// handlers. Every child-scoped route reads the caller from the X-User-ID
// header and the caregiver label from the "caregiver" query parameter or the
// X-Caregiver-Name header:
//
//	GET  /api/v1/children/:childID/questions
//	POST /api/v1/children/:childID/answers
//	GET  /api/v1/children/:childID/progress
//
// Domain errors map to status codes in RespondError: validation 400,
// forbidden 403, not found 404, conflict 409, external services 503.
//
// # Health Checks
//
// CompositeHealthChecker runs named checks in parallel. A failing check makes
// the service unhealthy; a failing optional check only marks it degraded:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("store", handlers.NewPingCheck(store))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
package handlers
