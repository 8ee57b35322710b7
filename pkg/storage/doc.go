// Package storage holds the pieces shared by the settings storage adapters:
// the canonical key layout and a contract test suite.
//
// Adapters live in sub-packages and all implement settings.StorageAdapter:
//
//	memory   process-local map, for tests and examples
//	file     one JSON or YAML document per key under a root directory
//	redis    one string value per key
//	sql      one row per key in a single table
//	layered  merges scoped layers read through another adapter
//	cached   LRU read-through in front of another adapter
//
// Deterministic keys:
//
//	Key(target) derives `system/<short>` or `<scope>/<id>/<short>` from the
//	binding options "scope" and "<scope>_id" (scopes: system, tenant, org,
//	team, user). A non-empty instance key is appended as `#<instanceKey>`.
//	The "key" option replaces the derived prefix entirely.
package storage
