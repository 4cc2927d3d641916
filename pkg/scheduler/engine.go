package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arnavshah/slot-assignment-api/pkg/logging"
	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// Engine runs the assignment pipeline for one location and date at a time.
// It holds no state between runs and is safe for concurrent use.
type Engine struct {
	repo    Repository
	cfg     Config
	metrics Metrics
	logger  *slog.Logger
	newID   IDFunc
	now     func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the logger used when the run context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics injects a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithIDFunc replaces DeterministicID.
func WithIDFunc(fn IDFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithClock replaces time.Now for run timing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine validates cfg and returns an engine reading from and writing to repo.
func NewEngine(repo Repository, cfg Config, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("scheduler: repository is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: invalid config: %w", err)
	}
	e := &Engine{
		repo:    repo,
		cfg:     cfg,
		metrics: nopMetrics{},
		logger:  slog.Default(),
		newID:   DeterministicID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's base configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// RunAssignment staffs the demand slots of one location and date.
//
// Fatal outcomes are returned as *ValidationError, *NoDemandError,
// *NoEligibleActorsError, *NoValidAssignmentsError, *RepositoryError or the
// context error when the run was cancelled before persistence. Once
// persistence begins the run is no longer cancellable and store rejections
// are reported on the affected assignments instead of failing the run.
func (e *Engine) RunAssignment(ctx context.Context, req models.RunRequest) (resp models.RunResponse, err error) {
	started := e.now()
	base := e.logger
	if l, ok := logging.Lookup(ctx); ok {
		base = l
	}
	logger := base.With("location", req.LocationID, "date", req.Date)
	ctx = logging.ContextWithLogger(ctx, logger)

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = ErrorKind(err)
		}
		elapsed := e.now().Sub(started)
		e.metrics.ObserveRun(outcome, elapsed, resp.Summary)
		if err != nil {
			logger.Warn("assignment run failed", "kind", outcome, "error", err, "duration", elapsed)
			return
		}
		logger.Info("assignment run complete",
			"assignments", resp.Summary.TotalAssignments,
			"auto_approved", resp.Summary.AutoApproved,
			"requires_review", resp.Summary.RequiresReview,
			"conflicts_resolved", resp.Summary.ConflictsResolved,
			"coverage", resp.Summary.CoveragePercentage,
			"duration", elapsed,
		)
	}()

	if err := ValidateRequest(req); err != nil {
		return models.RunResponse{}, err
	}
	cfg, err := e.cfg.WithPreferences(req.Preferences)
	if err != nil {
		return models.RunResponse{}, err
	}

	slots, warnings, err := e.fetchSlots(ctx, cfg, req)
	if err != nil {
		return models.RunResponse{}, err
	}

	var pool []models.Actor
	err = e.call(ctx, "fetch_eligible_actors", cfg.RepositoryTimeout, cfg.RetryBackoff, func(ctx context.Context) error {
		var ferr error
		pool, ferr = e.repo.FetchEligibleActors(ctx, req.LocationID)
		return ferr
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return models.RunResponse{}, repositoryFailure(ctx, "fetch_eligible_actors", err)
	}
	eligible := FilterEligible(pool, req.LocationID, req.Date)
	if len(eligible) == 0 {
		return models.RunResponse{}, &NoEligibleActorsError{LocationID: req.LocationID, Date: req.Date, PoolSize: len(pool)}
	}
	logger.Debug("actors filtered", "pool", len(pool), "eligible", len(eligible), "slots", len(slots))

	solved, err := Solve(ctx, eligible, slots, cfg, e.newID)
	if err != nil {
		return models.RunResponse{}, err
	}
	proposed := solved.Assignments
	logger.Debug("slots solved", "proposed", len(proposed))
	if len(proposed) == 0 {
		return models.RunResponse{
			Assignments: []models.Assignment{},
			Summary:     Summarize(slots, 0, nil),
			Warnings:    append(warnings, "no slot requested any headcount"),
		}, nil
	}

	var existing []models.Assignment
	err = e.call(ctx, "fetch_existing_assignments", cfg.RepositoryTimeout, cfg.RetryBackoff, func(ctx context.Context) error {
		var ferr error
		existing, ferr = e.repo.FetchExistingAssignments(ctx, actorIDs(proposed), req.Date)
		return ferr
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return models.RunResponse{}, repositoryFailure(ctx, "fetch_existing_assignments", err)
	}

	assignments, conflicts := DetectConflicts(existing, proposed)
	survivors := filterStatus(assignments, models.StatusProposed)
	logger.Debug("conflicts detected", "existing", len(existing), "rejected", len(conflicts), "surviving", len(survivors))

	if len(survivors) > 0 {
		var held []models.Assignment
		err = e.call(ctx, "fetch_slot_assignments", cfg.RepositoryTimeout, cfg.RetryBackoff, func(ctx context.Context) error {
			var ferr error
			held, ferr = e.repo.FetchSlotAssignments(ctx, req.LocationID, req.Date)
			return ferr
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return models.RunResponse{}, repositoryFailure(ctx, "fetch_slot_assignments", err)
		}
		full := EnforceHeadcount(assignments, slots, held)
		if len(full) > 0 {
			conflicts = append(conflicts, full...)
			survivors = filterStatus(assignments, models.StatusProposed)
			logger.Debug("headcount enforced", "held", len(held), "rejected", len(full), "surviving", len(survivors))
		}
	}
	if len(survivors) == 0 {
		return models.RunResponse{}, &NoValidAssignmentsError{Conflicts: conflicts}
	}

	if err := ctx.Err(); err != nil {
		return models.RunResponse{}, err
	}
	// Nothing below may be cancelled by the caller.
	pctx := context.WithoutCancel(ctx)

	warning, err := e.persist(pctx, cfg, assignments, survivors)
	if err != nil {
		return models.RunResponse{}, err
	}
	if warning != "" {
		warnings = append(warnings, warning)
	}

	assignments, result := Approve(assignments, conflicts, cfg.AutoApprovalThreshold)
	if recorder, ok := e.repo.(ApprovalRecorder); ok {
		rerr := e.call(pctx, "record_approvals", cfg.RepositoryTimeout, cfg.RetryBackoff, func(ctx context.Context) error {
			return recorder.RecordApprovals(ctx, result)
		})
		if rerr != nil {
			logger.Warn("recording approvals failed", "error", rerr)
			warnings = append(warnings, "approval decisions were not recorded: "+rerr.Error())
		}
	}

	return models.RunResponse{
		Assignments: assignments,
		Conflicts:   conflicts,
		Summary:     Summarize(slots, len(proposed), assignments),
		Warnings:    warnings,
	}, nil
}

// fetchSlots loads the demand of the run. Malformed slots are skipped with
// a warning; when none remain the run has no demand.
func (e *Engine) fetchSlots(ctx context.Context, cfg Config, req models.RunRequest) ([]models.DemandSlot, []string, error) {
	var fetched []models.DemandSlot
	err := e.call(ctx, "fetch_demand_slots", cfg.RepositoryTimeout, cfg.RetryBackoff, func(ctx context.Context) error {
		var ferr error
		fetched, ferr = e.repo.FetchDemandSlots(ctx, req.LocationID, req.Date)
		return ferr
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil, &NoDemandError{LocationID: req.LocationID, Date: req.Date}
	case err != nil:
		return nil, nil, repositoryFailure(ctx, "fetch_demand_slots", err)
	}

	var (
		slots    []models.DemandSlot
		warnings []string
	)
	for _, slot := range fetched {
		vErr := &ValidationError{}
		checkSlot(vErr, "", slot)
		if vErr.HasErrors() {
			logging.FromContext(ctx).Warn("skipping malformed demand slot", "slot", slot.ID, "error", vErr)
			warnings = append(warnings, fmt.Sprintf("slot %s skipped: %v", slot.ID, vErr))
			continue
		}
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		return nil, nil, &NoDemandError{LocationID: req.LocationID, Date: req.Date}
	}
	return slots, warnings, nil
}

// persist writes survivors and marks in place every survivor the store did
// not accept as pending review. It fails only when nothing was written
// because of a non-conflict error.
func (e *Engine) persist(ctx context.Context, cfg Config, assignments, survivors []models.Assignment) (string, error) {
	var written []models.Assignment
	err := e.call(ctx, "persist_assignments", cfg.RepositoryTimeout, cfg.RetryBackoff, func(ctx context.Context) error {
		w, perr := e.repo.PersistAssignments(ctx, survivors)
		written = w
		if perr != nil && len(w) > 0 {
			// Some rows are durable now; a retry would duplicate them.
			return permanent(perr)
		}
		return perr
	})
	if err == nil {
		return "", nil
	}

	var partial *PartialPersistenceError
	isPartial := errors.As(err, &partial)
	if !isPartial && len(written) == 0 && !errors.Is(err, ErrPersistenceConflict) {
		return "", &RepositoryError{Op: "persist_assignments", Err: err}
	}

	reasons := make(map[string]string)
	fallback := persistReason(err)
	if isPartial {
		fallback = reasonPersistFailed
		for _, f := range partial.Failed {
			reasons[f.AssignmentID] = persistReason(f.Err)
		}
	}
	stored := make(map[string]bool, len(written))
	for _, a := range written {
		stored[a.ID] = true
	}

	unwritten := 0
	for i := range assignments {
		a := &assignments[i]
		if a.Status != models.StatusProposed || stored[a.ID] {
			continue
		}
		reason, ok := reasons[a.ID]
		if !ok {
			reason = fallback
		}
		a.Status = models.StatusPendingReview
		a.Reason = reason
		unwritten++
	}

	logging.FromContext(ctx).Warn("assignments not persisted", "count", unwritten, "error", err)
	return fmt.Sprintf("%d of %d assignments were not persisted and require review", unwritten, len(survivors)), nil
}

func persistReason(err error) string {
	if err == nil || errors.Is(err, ErrPersistenceConflict) {
		return reasonPersistConflict
	}
	return reasonPersistFailed
}

func repositoryFailure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &RepositoryError{Op: op, Err: err}
}

func actorIDs(assignments []models.Assignment) []string {
	seen := make(map[string]struct{}, len(assignments))
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.ActorID]; ok {
			continue
		}
		seen[a.ActorID] = struct{}{}
		ids = append(ids, a.ActorID)
	}
	sort.Strings(ids)
	return ids
}

func filterStatus(assignments []models.Assignment, status models.AssignmentStatus) []models.Assignment {
	var out []models.Assignment
	for _, a := range assignments {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}
