package scheduler

import (
	"time"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// Metrics receives per-run observations. Implementations are injected into the
// engine; the engine keeps no metrics state of its own.
type Metrics interface {
	// ObserveRun is called once per run with its outcome label ("ok" or an ErrorKind).
	ObserveRun(outcome string, duration time.Duration, summary models.Summary)
	IncRepositoryRetry(op string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRun(string, time.Duration, models.Summary) {}
func (nopMetrics) IncRepositoryRetry(string)                       {}
