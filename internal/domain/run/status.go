// Package run contains pure policy logic for run status translation.
// It has no dependencies beyond the domain model so the mapping table can
// be tested exhaustively.
package run

import (
	"strings"

	"github.com/audiencelab/scrapewatch/internal/domain/model"
)

// External platform status vocabulary. The platform may grow new values at
// any time; translation is total and fail-open, never an error.
const (
	ExternalStatusReady     = "READY"
	ExternalStatusRunning   = "RUNNING"
	ExternalStatusSucceeded = "SUCCEEDED"
	ExternalStatusFailed    = "FAILED"
	ExternalStatusTimingOut = "TIMING-OUT"
	ExternalStatusTimedOut  = "TIMED-OUT"
	ExternalStatusAborting  = "ABORTING"
	ExternalStatusAborted   = "ABORTED"
)

var statusTable = map[string]model.RunStatus{
	ExternalStatusReady:     model.RunStatusPending,
	ExternalStatusRunning:   model.RunStatusRunning,
	ExternalStatusSucceeded: model.RunStatusSucceeded,
	ExternalStatusFailed:    model.RunStatusFailed,
	ExternalStatusTimingOut: model.RunStatusRunning,
	ExternalStatusTimedOut:  model.RunStatusTimedOut,
	ExternalStatusAborting:  model.RunStatusRunning,
	ExternalStatusAborted:   model.RunStatusAborted,
}

// TranslateStatus maps an external platform status to the internal status
// taxonomy. Unrecognized values map to pending so a new platform status
// keeps the run under observation instead of wedging it.
func TranslateStatus(external string) model.RunStatus {
	if s, ok := statusTable[normalize(external)]; ok {
		return s
	}
	return model.RunStatusPending
}

// IsTerminalStatus reports whether an external status is in the terminal
// set {SUCCEEDED, FAILED, TIMED-OUT, ABORTED}.
func IsTerminalStatus(external string) bool {
	return TranslateStatus(external).Terminal()
}

func normalize(external string) string {
	return strings.ToUpper(strings.TrimSpace(external))
}
