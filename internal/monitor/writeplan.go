package monitor

import (
	"time"

	"sitewatch/internal/models"
)

// WriteReason classifies why a cycle persisted its state. It is diagnostic
// only and never changes the decision.
type WriteReason string

const (
	WriteNone          WriteReason = ""
	WriteForced        WriteReason = "forced"
	WriteStatusChange  WriteReason = "status-change"
	WriteScheduled     WriteReason = "scheduled"
	WritePendingChange WriteReason = "pending-state-save"
)

// PlanWrite decides whether the cycle's state must be persisted. A missing
// due time is initialized from the last write.
func PlanWrite(state *models.MonitorState, now time.Time, force, statusChanged, pendingChanged bool) (bool, WriteReason) {
	nowMs := now.UnixMilli()
	if state.MonitorNextDueAt <= 0 {
		base := state.LastUpdate
		if base <= 0 {
			base = nowMs
		}
		state.MonitorNextDueAt = floorToMinute(base + minutes(state.Config.CheckInterval))
	}

	switch {
	case force:
		return true, WriteForced
	case statusChanged:
		return true, WriteStatusChange
	case nowMs >= state.MonitorNextDueAt:
		return true, WriteScheduled
	case pendingChanged:
		return true, WritePendingChange
	}
	return false, WriteNone
}

// CommitWrite updates the write counters and schedules the next periodic
// write. Call it right before persisting.
func CommitWrite(state *models.MonitorState, now time.Time, reason WriteReason) {
	nowMs := now.UnixMilli()
	w := &state.Stats.Writes
	w.Total++
	w.Today++
	if reason == WriteStatusChange {
		w.StatusChange++
	} else {
		w.Forced++
	}
	state.LastUpdate = nowMs
	state.MonitorNextDueAt = floorToMinute(nowMs + minutes(state.Config.CheckInterval))
}

// untilNextWrite is the remaining time before the next scheduled write.
func untilNextWrite(state *models.MonitorState, now time.Time) time.Duration {
	d := time.Duration(state.MonitorNextDueAt-now.UnixMilli()) * time.Millisecond
	if d < 0 {
		return 0
	}
	return d
}
