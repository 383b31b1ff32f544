package pipeline

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/json"
)

// Outcome is how a loader ended
type Outcome string

const (
	// OutcomeOK means every table was submitted
	OutcomeOK Outcome = "ok"
	// OutcomeFailed means extraction or submission failed
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the loader did not run for lack of credentials
	OutcomeSkipped Outcome = "skipped"
)

// Result is the explicit outcome of one loader execution
type Result struct {
	Loader    string           `json:"loader"`
	Outcome   Outcome          `json:"outcome"`
	Mode      core.WriteMode   `json:"mode"`
	Rows      int              `json:"rows"`
	Tables    map[string]int   `json:"tables,omitempty"`
	Elapsed   time.Duration    `json:"elapsed_ns"`
	ErrorKind errors.ErrorType `json:"error_kind,omitempty"`
	Message   string           `json:"message,omitempty"`
	// Phase is "full", "window 3/5", "final" or "partner"
	Phase string `json:"phase,omitempty"`
}

// OK reports whether the loader succeeded
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Run modes
const (
	ModeFull     = "full"
	ModeBackfill = "backfill"
	ModePartner  = "partner"
)

// RunReport aggregates the results of one orchestrator run. It is not
// persisted beyond the optional JSON file.
type RunReport struct {
	RunID       string          `json:"run_id"`
	Mode        string          `json:"mode"`
	Destination string          `json:"destination"`
	Started     time.Time       `json:"started"`
	Finished    time.Time       `json:"finished"`
	Results     []Result        `json:"results"`
	Backfill    *BackfillReport `json:"backfill,omitempty"`
}

// Add appends a result
func (r *RunReport) Add(res Result) {
	r.Results = append(r.Results, res)
}

// Counts returns the number of ok, failed and skipped loaders
func (r *RunReport) Counts() (ok, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeOK:
			ok++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return ok, failed, skipped
}

// Failed reports whether any loader failed or the backfill aborted
func (r *RunReport) Failed() bool {
	_, failed, _ := r.Counts()
	return failed > 0 || (r.Backfill != nil && r.Backfill.Aborted())
}

// Rows returns the total number of rows submitted
func (r *RunReport) Rows() int {
	n := 0
	for _, res := range r.Results {
		n += res.Rows
	}
	return n
}

// Duration returns the wall time of the run
func (r *RunReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Log writes the run summary
func (r *RunReport) Log(logger *zap.Logger) {
	ok, failed, skipped := r.Counts()
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("mode", r.Mode),
		zap.Int("ok", ok),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Int("rows", r.Rows()),
		zap.Duration("duration", r.Duration()),
	}
	if r.Backfill != nil {
		fields = append(fields, zap.String("backfill_state", string(r.Backfill.State)))
	}
	if r.Failed() {
		logger.Warn("run finished with failures", fields...)
		for _, res := range r.Results {
			if res.Outcome == OutcomeFailed {
				logger.Warn(fmt.Sprintf("❌ %s (%s): %s", res.Loader, res.ErrorKind, res.Message), zap.String("phase", res.Phase))
			}
		}
		return
	}
	logger.Info("run finished", fields...)
}

// WriteFile writes the report as indented JSON
func (r *RunReport) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode run report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, fmt.Sprintf("failed to write run report %s", path))
	}
	return nil
}
