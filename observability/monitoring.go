// Package observability aggregates reconciliation telemetry.
package observability

import (
	"sync/atomic"
)

// Stats is a point-in-time view of the reconciliation counters.
type Stats struct {
	RoomSnapshots     uint64 `json:"room_snapshots"`
	MessagesMerged    uint64 `json:"messages_merged"`
	DuplicatesDropped uint64 `json:"duplicates_dropped"`
	LateDrops         uint64 `json:"late_drops"`
	ReceiptsApplied   uint64 `json:"receipts_applied"`
	SyncErrors        uint64 `json:"sync_errors"`
	EventsDropped     uint64 `json:"events_dropped"`
	CommandRetries    uint64 `json:"command_retries"`
}

// Monitor collects counters from the hot paths. All methods are safe on a
// nil receiver so wiring telemetry stays optional.
type Monitor struct {
	roomSnapshots     atomic.Uint64
	messagesMerged    atomic.Uint64
	duplicatesDropped atomic.Uint64
	lateDrops         atomic.Uint64
	receiptsApplied   atomic.Uint64
	syncErrors        atomic.Uint64
	eventsDropped     atomic.Uint64
	commandRetries    atomic.Uint64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) IncrRoomSnapshots() {
	if m == nil {
		return
	}
	m.roomSnapshots.Add(1)
}

func (m *Monitor) IncrMessagesMerged(n uint64) {
	if m == nil {
		return
	}
	m.messagesMerged.Add(n)
}

func (m *Monitor) IncrDuplicatesDropped() {
	if m == nil {
		return
	}
	m.duplicatesDropped.Add(1)
}

func (m *Monitor) IncrLateDrops() {
	if m == nil {
		return
	}
	m.lateDrops.Add(1)
}

func (m *Monitor) IncrReceiptsApplied() {
	if m == nil {
		return
	}
	m.receiptsApplied.Add(1)
}

func (m *Monitor) IncrSyncErrors() {
	if m == nil {
		return
	}
	m.syncErrors.Add(1)
}

func (m *Monitor) IncrEventsDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Add(1)
}

func (m *Monitor) IncrCommandRetries() {
	if m == nil {
		return
	}
	m.commandRetries.Add(1)
}

// Snapshot returns the current counter values.
func (m *Monitor) Snapshot() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		RoomSnapshots:     m.roomSnapshots.Load(),
		MessagesMerged:    m.messagesMerged.Load(),
		DuplicatesDropped: m.duplicatesDropped.Load(),
		LateDrops:         m.lateDrops.Load(),
		ReceiptsApplied:   m.receiptsApplied.Load(),
		SyncErrors:        m.syncErrors.Load(),
		EventsDropped:     m.eventsDropped.Load(),
		CommandRetries:    m.commandRetries.Load(),
	}
}
