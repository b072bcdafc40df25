// Package provision exposes admin user provisioning over HTTP: an
// Admin-authenticated POST creates a backend identity and profile pair and
// returns the freshly generated access code for out-of-band delivery.
package provision
