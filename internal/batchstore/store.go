package batchstore

import (
	"context"
	"fmt"
	"time"
)

// Store is the keyed, TTL'd shared state all pipeline tasks coordinate
// through. It is the only shared mutable resource between fetch tasks, the
// coordinator, and the completion aggregator, so every write must be safe
// under concurrent writers to the same key: Put replaces, PutNX is
// first-writer-wins, AddToSet is an idempotent membership insert.
//
// An expired key reads as absent, never as an error. Callers treat absence
// as "not yet ready".
type Store interface {
	// Put marshals value as JSON and stores it under key for ttl.
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	// PutNX stores value only if key is absent. Returns true when this
	// caller won the write.
	PutNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	// Get unmarshals the value under key into dest. Returns false when the
	// key is absent or expired.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Forget removes key. Removing an absent key is not an error.
	Forget(ctx context.Context, key string) error
	// AddToSet inserts member into the set under key, refreshing the set's
	// ttl. Returns true when the member was not already present.
	AddToSet(ctx context.Context, key string, member string, ttl time.Duration) (bool, error)
	// SetSize returns the cardinality of the set under key (0 when absent).
	SetSize(ctx context.Context, key string) (int64, error)
	// SetMembers returns the members of the set under key.
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// Key helpers. All batch-scoped state lives under batch:<id>:<role> and all
// sweep-scoped state under sweep:<id>:<role>, so a whole batch can be
// reasoned about (and expired) by prefix.

func FlightsKey(batchID string) string   { return fmt.Sprintf("batch:%s:flights", batchID) }
func HotelsKey(batchID string) string    { return fmt.Sprintf("batch:%s:hotels", batchID) }
func PackageKey(batchID string) string   { return fmt.Sprintf("batch:%s:package", batchID) }
func StatusKey(batchID string) string    { return fmt.Sprintf("batch:%s:status", batchID) }
func AlternatesKey(batchID string) string { return fmt.Sprintf("batch:%s:alternates", batchID) }

func GridKey(batchID, direction string) string {
	return fmt.Sprintf("batch:%s:grid:%s", batchID, direction)
}

func CombinationKey(batchID string) string {
	return fmt.Sprintf("batch:%s:cheapest_combination", batchID)
}

func HaveFlightsKey(batchID string) string { return fmt.Sprintf("batch:%s:have_flights", batchID) }
func HaveHotelsKey(batchID string) string  { return fmt.Sprintf("batch:%s:have_hotels", batchID) }

func SweepExpectedKey(sweepID string) string { return fmt.Sprintf("sweep:%s:expected", sweepID) }
func SweepResolvedKey(sweepID string) string { return fmt.Sprintf("sweep:%s:resolved", sweepID) }
func SweepExportedKey(sweepID string) string { return fmt.Sprintf("sweep:%s:exported", sweepID) }

func SweepResolutionKey(sweepID, batchID string) string {
	return fmt.Sprintf("sweep:%s:resolution:%s", sweepID, batchID)
}
