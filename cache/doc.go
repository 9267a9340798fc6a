// Package cache provides the byte cache shared by key-set sources and the
// analytics collaborator.
//
// It defines the Cache contract with in-memory and Redis implementations,
// SHA-256 based key derivation and TTL policies.
package cache
