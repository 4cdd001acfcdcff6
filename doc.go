// Package authcore implements credential authentication and session
// lifecycle management: password login with lockout, TOTP second
// factors with single-use backup codes, JWT issuance, refresh token
// rotation with family-wide reuse revocation, and a per-account
// session registry.
//
// # Architecture
//
// One Engine carries the whole surface. It is assembled by a Builder
// from a small set of collaborators:
//
//   - Store: persistence for accounts, authenticator state, and
//     refresh token records. See memstore for a reference in-memory
//     implementation and pgstore for PostgreSQL.
//   - RoleResolver: supplies the org, role, and permission claims
//     minted into access tokens. Resolved again on every rotation.
//   - RateLimiter: optional login/refresh throttling.
//   - AuditSink: optional destination for security events, decoupled
//     from request latency by an internal dispatcher.
//
// Refresh tokens are stored only as SHA-256 digests, and records are
// never deleted: revocation writes a reason and leaves the row in
// place, which is what makes replay of an already-rotated token
// detectable for as long as its family lives.
//
// # Usage
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithRoleResolver(roles).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	res, err := engine.Login(ctx, authcore.LoginInput{
//		Email:    "ana@example.com",
//		Password: secret,
//	})
//	switch {
//	case errors.Is(err, authcore.ErrAccountLocked):
//		// locked out, try later
//	case err == nil && res.MFARequired:
//		// repeat the call with in.SecondFactor set
//	}
//
// Request metadata rides on the context: wrap it with WithClientIP,
// WithUserAgent, and WithRequestID before calling in, and device
// labels, throttle keys, and audit records pick it up from there.
//
// All exported methods are safe for concurrent use.
package authcore
