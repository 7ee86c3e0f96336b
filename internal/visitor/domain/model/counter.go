// Package model holds the visitor counter types.
package model

import "time"

// GlobalCounterID is the id of the single site-wide counter record.
const GlobalCounterID = "global"

// CounterRecord is the stored visitor counter. Count never decreases and
// CreatedAt is written once, by the first increment that finds it absent.
type CounterRecord struct {
	ID        string     `json:"id" bson:"_id"`
	Count     int64      `json:"count" bson:"count"`
	CreatedAt *time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
}

// IncrementPath names how a counter value was obtained.
type IncrementPath string

const (
	PathAtomic   IncrementPath = "atomic"
	PathFallback IncrementPath = "fallback"
	PathRead     IncrementPath = "read"
	PathCached   IncrementPath = "cached"
	PathDeduped  IncrementPath = "deduped"
)

// CounterResult is what callers of the counter service receive. Count is
// always usable; Success is false when it came from the cache after the
// backend failed.
type CounterResult struct {
	Success   bool          `json:"success"`
	Count     int64         `json:"count"`
	StartDate *time.Time    `json:"startDate"`
	Path      IncrementPath `json:"-"`
}
