// Package gotrue implements accesscode.IdentityBackend against a hosted
// GoTrue-compatible identity service.
//
// The client owns the current session the way the hosted SDKs do: sign-in
// and sign-out mutate a local session slot and fan auth-state change events
// out to registered listeners in-process. Admin endpoints are reached with
// the service-role key and are only wired up in privileged topologies.
package gotrue
