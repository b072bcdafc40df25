// Package accesscode bridges a human-memorable credential (email plus a
// 4-digit access code issued out-of-band) onto a managed identity backend
// that only understands email/password accounts.
//
// Credential bridge:
//   - Bridge.SignInWithAccessCode verifies the code against the profile
//     store, then creates the backend identity on first login or signs in
//     against the existing one, force-repairing the stored password when it
//     has drifted from the access code.
//
// Session observation:
//   - Watcher subscribes to the backend's auth-state stream and resolves the
//     application profile for every authenticated identity, linking by
//     identity id with an email fallback that persists the link. Resolution
//     failures fail closed: state clears and the UI sees "not authenticated".
//   - AuthState is the single shared slot for the resolved user, the session,
//     and the loading flag, with subscribe/notify fan-out. It is an explicit
//     object, not a package singleton.
//
// Provisioning:
//   - ProvisionUserHandler is the privileged flow that mints a fresh access
//     code, creates the identity/profile pair, and rolls the identity back if
//     the profile insert fails. The provision subpackage exposes it over
//     HTTP to Admin-role callers.
package accesscode
