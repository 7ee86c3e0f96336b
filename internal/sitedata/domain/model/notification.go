package model

import (
	"encoding/json"
	"time"
)

// ChangeSource says where a change notification came from.
type ChangeSource string

const (
	SourceLocal ChangeSource = "local"
	// SourceLocalRecord is a local write whose remote copy the writer
	// updates record by record, so no whole-collection push follows.
	SourceLocalRecord  ChangeSource = "local_record"
	SourceCrossProcess ChangeSource = "cross_process"
	SourceRemote       ChangeSource = "remote"
	SourceBackup       ChangeSource = "backup"
)

// ChangeNotification tells subscribers that a collection may have changed.
// An empty Key means any collection may have changed. Data is advisory and
// may be nil or stale; subscribers re-load from the store.
type ChangeNotification struct {
	Key    CollectionKey `json:"key,omitempty"`
	Data   Snapshot      `json:"data,omitempty"`
	Origin string        `json:"origin,omitempty"`
	Source ChangeSource  `json:"source"`
	At     time.Time     `json:"at"`
}

// Signals reports whether a change from this source must be announced to
// the other processes sharing the local medium.
func (s ChangeSource) Signals() bool {
	return s == SourceLocal || s == SourceLocalRecord || s == SourceRemote
}

// IsWildcard reports whether every collection should be reloaded.
func (n ChangeNotification) IsWildcard() bool {
	return n.Key == ""
}

// Affects reports whether a subscriber interested in key should react.
func (n ChangeNotification) Affects(key CollectionKey) bool {
	return n.IsWildcard() || n.Key == key
}

// SyncState is the per-collection view of the cloud reconciler.
type SyncState string

const (
	SyncDisabled  SyncState = "disabled"
	SyncLocalOnly SyncState = "local_only"
	SyncSyncing   SyncState = "syncing"
	SyncSynced    SyncState = "synced"
	SyncDegraded  SyncState = "degraded"
)

// ReconcilerPhase is the process-wide reconciler state machine.
type ReconcilerPhase string

const (
	PhaseDisabled     ReconcilerPhase = "disabled"
	PhaseInitializing ReconcilerPhase = "initializing"
	PhaseSynced       ReconcilerPhase = "synced"
	PhaseDegraded     ReconcilerPhase = "degraded"
)

// SyncStatus is a point-in-time report of the reconciler.
type SyncStatus struct {
	Phase       ReconcilerPhase             `json:"phase" yaml:"phase"`
	Collections map[CollectionKey]SyncState `json:"collections" yaml:"collections"`
	LastError   string                      `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	UpdatedAt   time.Time                   `json:"updated_at" yaml:"updated_at"`
}

// Frame types on the websocket surface.
const (
	FrameTypeChange = "change"
	FrameTypeReady  = "ready"
	FrameTypeSync   = "sync"
)

// ChangeFrame is the websocket wire form of a ChangeNotification. A null Key
// means reload everything.
type ChangeFrame struct {
	Type   string          `json:"type"`
	Key    *CollectionKey  `json:"key"`
	Data   json.RawMessage `json:"data,omitempty"`
	Source ChangeSource    `json:"source,omitempty"`
	At     time.Time       `json:"at"`
}

// NewChangeFrame encodes n. Data is attached only when withData is set and
// the notification carries a snapshot.
func NewChangeFrame(n ChangeNotification, withData bool) (ChangeFrame, error) {
	frame := ChangeFrame{Type: FrameTypeChange, Source: n.Source, At: n.At}
	if !n.IsWildcard() {
		key := n.Key
		frame.Key = &key
	}
	if withData && n.Data != nil {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return ChangeFrame{}, err
		}
		frame.Data = raw
	}
	return frame, nil
}

// Originating reports whether the frame describes a write made on the
// sending surface rather than one it merely relayed.
func (f ChangeFrame) Originating() bool {
	return f.Source != SourceRemote && f.Source != SourceBackup
}
