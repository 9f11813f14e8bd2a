// Package types defines the contribution and lineage entities, the store
// interface, configuration, and the standard errors shared by the vault
// storage backend, resolver, and contribution service.
package types
