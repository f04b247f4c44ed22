package domain

import "time"

// DistanceMetric identifies how vector similarity is computed.
// Fixed per collection for its lifetime.
type DistanceMetric string

// Supported distance metrics.
const (
	DistanceCosine DistanceMetric = "cosine"
	DistanceDot    DistanceMetric = "dot"
	DistanceEuclid DistanceMetric = "euclid"
)

// Valid reports whether the metric is one of the supported values.
func (m DistanceMetric) Valid() bool {
	switch m {
	case DistanceCosine, DistanceDot, DistanceEuclid:
		return true
	}
	return false
}

// CollectionState tracks where a collection is in its lifecycle.
type CollectionState string

// Collection lifecycle states.
//
// Absent -> Created -> Indexed <-> Optimizing
//
//	Indexed -> Degraded -> Indexed (after full rebuild or re-ingestion)
const (
	StateAbsent     CollectionState = "absent"
	StateCreated    CollectionState = "created"
	StateIndexed    CollectionState = "indexed"
	StateOptimizing CollectionState = "optimizing"
	StateDegraded   CollectionState = "degraded"
)

// CollectionInfo describes a collection and its aggregate statistics.
// VectorCount always reflects the backend's authoritative count.
type CollectionInfo struct {
	// Name uniquely identifies the collection.
	Name string

	// Dimension is the fixed embedding length for this collection.
	Dimension int

	// Distance is the fixed distance metric for this collection.
	Distance DistanceMetric

	// VectorCount is the number of vectors currently stored.
	VectorCount int64

	// IndexedAt is when the index was last written or rebuilt.
	IndexedAt time.Time

	// State is the lifecycle state as tracked by the index manager.
	State CollectionState
}

// RebuildMode selects between background optimization and a blocking
// full index rebuild.
type RebuildMode string

// Rebuild modes.
const (
	RebuildIncremental RebuildMode = "incremental"
	RebuildFull        RebuildMode = "full"
)

// Valid reports whether the mode is one of the supported values.
func (m RebuildMode) Valid() bool {
	return m == RebuildIncremental || m == RebuildFull
}
