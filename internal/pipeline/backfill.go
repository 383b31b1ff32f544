package pipeline

import (
	"time"
)

// BackfillState is a stage of the backfill state machine
type BackfillState string

const (
	StatePending        BackfillState = "pending"
	StateRunning        BackfillState = "running"
	StateAllWindowsDone BackfillState = "all_windows_done"
	StateAborted        BackfillState = "aborted"
	StateFinalSync      BackfillState = "final_incremental_sync"
)

// PhaseFinal labels results of the final incremental sync
const PhaseFinal = "final"

// WindowResult is how one backfill window ended
type WindowResult string

const (
	WindowPending    WindowResult = "pending"
	WindowDone       WindowResult = "done"
	WindowFailed     WindowResult = "failed"
	WindowNotStarted WindowResult = "not_attempted"
)

// Window is a half-open time range [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Windows cuts [start, now) into contiguous windows of width. The last
// window ends exactly at now and may be shorter. Returns nil when start is
// not before now.
func Windows(start, now time.Time, width time.Duration) []Window {
	if width <= 0 || !start.Before(now) {
		return nil
	}
	var windows []Window
	for cur := start; cur.Before(now); {
		end := cur.Add(width)
		if end.After(now) {
			end = now
		}
		windows = append(windows, Window{Start: cur, End: end})
		cur = end
	}
	return windows
}

// WindowReport records one window in the backfill report
type WindowReport struct {
	Window
	Result WindowResult `json:"result"`
}

// BackfillReport tracks the state machine of one backfill run
type BackfillReport struct {
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	State     BackfillState   `json:"state"`
	History   []BackfillState `json:"history"`
	Windows   []WindowReport  `json:"windows"`
	Completed int             `json:"completed"`
	// AbortedAt is the index of the window that stopped the run, -1 if none
	AbortedAt   int    `json:"aborted_at"`
	AbortReason string `json:"abort_reason,omitempty"`
}

func newBackfillReport(start, end time.Time, windows []Window) *BackfillReport {
	bf := &BackfillReport{
		Start:     start,
		End:       end,
		State:     StatePending,
		History:   []BackfillState{StatePending},
		Windows:   make([]WindowReport, len(windows)),
		AbortedAt: -1,
	}
	for i, w := range windows {
		bf.Windows[i] = WindowReport{Window: w, Result: WindowPending}
	}
	return bf
}

func (b *BackfillReport) transition(s BackfillState) {
	b.State = s
	b.History = append(b.History, s)
}

func (b *BackfillReport) abort(i int, reason string) {
	b.AbortedAt = i
	b.AbortReason = reason
	for j := i; j < len(b.Windows); j++ {
		if b.Windows[j].Result == WindowPending {
			b.Windows[j].Result = WindowNotStarted
		}
	}
	b.transition(StateAborted)
}

// Aborted reports whether any window stopped the run
func (b *BackfillReport) Aborted() bool {
	return b.AbortedAt >= 0
}
