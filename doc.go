// Package storeguard implements the login hardening core of a storefront:
// per-account brute-force escalation (CAPTCHA after repeated failures, then
// a timed lockout), TOTP second-factor verification, CSRF protection, signed
// session tokens, and single-use password reset tokens.
//
// The package is a library, not a service. Callers integrate it through
// three boundaries:
//
//   - [AccountStore]: account lookup and risk-state persistence. The store
//     must apply [AccountStore.UpdateRiskState] atomically per account;
//     everything else the engine needs is plain CRUD.
//   - [Mailer]: out-of-band delivery of password reset links. The engine
//     hands the plaintext reset token to the mailer exactly once and keeps
//     only its SHA-256 hash.
//   - [AuditSink]: structured security events. Audit delivery is
//     fire-and-forget; a failing sink never fails a login attempt.
//
// Everything HTTP-shaped — routing, template rendering, cookie handling —
// stays outside. [Engine.Login] accepts the already-extracted fields of one
// attempt and returns either a session token or a caller-distinguishable
// rejection (invalid credentials, locked, captcha required, second factor
// required, password expired), so presentation layers can render each case
// without the engine ever leaking which internal check failed.
//
// Engine methods are safe for concurrent use after [Builder.Build].
package storeguard
