// Package storage holds what the execution stores share: sentinel errors
// and the tenant scope carried on contexts. The store interface itself is
// transport.ExecutionStore; memory and postgres implement it.
package storage
