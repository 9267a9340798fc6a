// Package secret resolves configuration values that may reference secrets.
//
// A value is first expanded strictly: ${VAR} must be set. The result may then
// be, or contain, a reference of the form
//
//	secretref:<provider>:<ref>
//
// which is replaced by the provider's answer. Two providers ship with the
// package:
//   - env:  secretref:env:DB_PASSWORD reads an environment variable
//   - file: secretref:file:/run/secrets/db reads a mounted secret file
//
// Providers must never log the values they return.
package secret
