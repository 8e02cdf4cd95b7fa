// Package vault implements the backend of a single-tenant credential vault:
// a combined login-or-provision authentication flow, invite-gated account
// creation, and per-row storage for encrypted password entries.
//
// Master password handling:
//   - The browser derives a hash from the master password with PBKDF2 and
//     never sends the plaintext. The backend re-derives a storage hash over
//     that value plus a per-account salt, so neither side ever persists or
//     transmits the raw secret.
//   - Derivation parameters are a wire contract with the client (HMAC-SHA256,
//     10000 iterations, 64-byte output) and must not change independently.
//
// Invite codes:
//   - First-time provisioning requires a single-use, time-limited invite
//     code. InviteCode rows move through active, used, expired, and revoked
//     states; InviteStateMachine centralizes the transition graph, and the
//     repositories only persist what the machine allows (administrative
//     overrides use WithForceTransition).
//
// Sessions:
//   - Sessions are stateless HS256 JWTs bound to the client IP observed at
//     issuance. There is no server-side session store and no revocation
//     before natural expiry.
package vault
