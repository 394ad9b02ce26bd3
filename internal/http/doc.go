// Package http provides the chi router, handlers and middleware for the
// class booking API.
//
// The router exposes the following endpoints:
//   - GET /health and GET /metrics.
//   - POST /auth/login issues a session token. Body: {"email","password"}. The
//     token is returned in the body, the `X-Session-Token` header and a
//     `session_token` cookie. POST /auth/logout revokes it.
//   - POST /auth/register, /auth/send-verify-code, /auth/verify-email-code,
//     /auth/forgot-password and /auth/reset-password drive the emailed-code
//     account flows. DELETE /account soft-deletes the caller. All of them are
//     rate limited per client IP.
//   - GET /classes lists sessions annotated with occupancy and, for a signed-in
//     caller, their own booking. GET /classes/{id} returns one session. POST,
//     PATCH and DELETE on /classes are staff only; POST expands collective
//     classes weekly over the requested recurrence window.
//   - POST /bookings, DELETE /bookings/{id} and GET /my/bookings serve the
//     caller's own seats.
//   - /admin/bookings/{id}/cancel, /admin/bookings/{id}/attendance and
//     /admin/users[/{id}[/disabled|/role]] are staff only.
//
// Errors are returned as {"error_code","message","errors"}; see classifyError
// for the status mapping. Request/response DTOs live alongside their handlers.
package http
