// Package auth implements the identity and session lifecycle for a
// multi-tenant service: signup with email confirmation, password login,
// stateless JWT sessions, and self-service password recovery.
//
// Persistence:
//   - User records live behind the CredentialStore interface. The package
//     ships a Bun-backed relational store (UsersStore) and a hosted
//     PostgREST-style store (SupabaseStore); both honor the same atomicity
//     guarantees, so the backend is a startup-time choice, not a runtime one.
//
// Tokens:
//   - TokenService mints three token kinds that share a secret but never
//     cross audiences: session tokens carry the subject's access level,
//     email-verification tokens confirm address ownership, and
//     password-reset tokens gate recovery. Validate rejects a token whose
//     audience does not match the consuming flow even when the signature
//     and expiry are fine.
//
// Flows:
//   - Accounts composes the store, the token service, the bcrypt hasher,
//     and a notification Dispatcher into the signup, confirmation, login,
//     forgot-password, and reset-password transitions. Lookups that could
//     reveal whether an account exists answer identically either way.
//   - RequireAccessLevel is the single request-time authorization gate:
//     it decodes the session token (Authorization header first, cookie
//     second) and compares the embedded access level against the route's
//     threshold.
package auth
