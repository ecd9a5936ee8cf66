// Package middleware provides HTTP middleware for the SSO service.
//
// # Overview
//
// This package implements cross-cutting HTTP concerns:
//
//   - Request context: request ID generation and actor attribution
//   - Rate limiting: token bucket limits on login and callback endpoints,
//     in-memory for single instances or Redis-backed for fleets
//
// # Usage Example
//
// Wrap a router:
//
//	limiter := middleware.NewRateLimiter(middleware.LoginRateLimitConfig())
//	handler := middleware.RequestContext(middleware.RateLimit(limiter)(router))
//
// # Related Packages
//
//   - pkg/contextkeys: Context keys populated by RequestContext
//   - pkg/sso: Handlers consuming request attribution
package middleware
