// Package syncer owns sync timing: periodic polling, refresh triggers,
// post-save cooldown suppression, and the push pipeline to the primary and
// backup stores.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
	"github.com/lamplight-apps/chapterboard/internal/directory"
	"github.com/lamplight-apps/chapterboard/internal/metrics"
	"github.com/lamplight-apps/chapterboard/internal/population"
	"github.com/lamplight-apps/chapterboard/internal/records"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 60 * time.Second
	defaultCooldown     = 30 * time.Second
	backupPushTimeout   = 15 * time.Second
)

var (
	errMissingPrimary   = errors.New("primary store is required")
	errMissingRecords   = errors.New("record store is required")
	errMissingLedger    = errors.New("population ledger is required")
	errMissingDirectory = errors.New("directory is required")
	errMissingBackup    = errors.New("backup store is not configured")
	noOpLogger          = zap.NewNop()
)

// PrimaryStore is the authoritative remote document endpoint.
type PrimaryStore interface {
	Fetch(ctx context.Context) (appdata.Document, error)
	Push(ctx context.Context, doc appdata.Document) error
}

// BackupStore is the opportunistic secondary document endpoint.
type BackupStore interface {
	Fetch(ctx context.Context) (appdata.Document, error)
	Push(ctx context.Context, doc appdata.Document) error
}

// SnapshotCache is the local single-key document store.
type SnapshotCache interface {
	Load() (appdata.Document, bool)
	Store(doc appdata.Document) error
}

// state enumerates the mutually exclusive controller phases.
type state int

const (
	stateIdle state = iota
	stateFetching
	stateSaving
)

func (s state) String() string {
	switch s {
	case stateFetching:
		return "fetching"
	case stateSaving:
		return "saving"
	default:
		return "idle"
	}
}

// ControllerConfig describes the controller dependencies and tunables.
type ControllerConfig struct {
	Primary   PrimaryStore
	Backup    BackupStore
	Cache     SnapshotCache
	Records   *records.Store
	Ledger    *population.Ledger
	Directory *directory.Directory
	Metrics   metrics.Provider
	Logger    *zap.Logger
	Clock     func() time.Time

	// PollInterval is the background fetch period.
	PollInterval time.Duration
	// Cooldown suppresses fetches after a successful save so propagation lag
	// on the remote cannot visibly roll back a just-made change.
	Cooldown time.Duration
}

// Controller drives the sync lifecycle. The cooldown deadline and in-flight
// state are instance fields with an explicit lifecycle: created at app start,
// cooldown armed on save success, cleared on save failure, and read by every
// trigger path.
type Controller struct {
	primary   PrimaryStore
	backup    BackupStore
	cache     SnapshotCache
	records   *records.Store
	ledger    *population.Ledger
	directory *directory.Directory
	metrics   metrics.Provider
	logger    *zap.Logger
	clock     func() time.Time

	pollInterval time.Duration
	cooldown     time.Duration

	// opMu serializes the fetch and save pipelines so the phases stay
	// mutually exclusive: a refresh that would overlap a save is suppressed,
	// and a save arriving during a fetch waits for it to finish instead of
	// letting a stale snapshot replace state mid-save. Saves never run
	// concurrently with their own pre-save fetch either; the whole pipeline
	// holds the lock.
	opMu sync.Mutex

	mu            sync.Mutex
	state         state
	cooldownUntil time.Time
	lastFetchAt   time.Time
}

// NewController constructs a Controller with validated configuration.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Primary == nil {
		return nil, errMissingPrimary
	}
	if cfg.Records == nil {
		return nil, errMissingRecords
	}
	if cfg.Ledger == nil {
		return nil, errMissingLedger
	}
	if cfg.Directory == nil {
		return nil, errMissingDirectory
	}

	provider := cfg.Metrics
	if provider == nil {
		provider = metrics.NewProvider(false)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	return &Controller{
		primary:      cfg.Primary,
		backup:       cfg.Backup,
		cache:        cfg.Cache,
		records:      cfg.Records,
		ledger:       cfg.Ledger,
		directory:    cfg.Directory,
		metrics:      provider,
		logger:       logger,
		clock:        clock,
		pollInterval: pollInterval,
		cooldown:     cooldown,
	}, nil
}

// Run loads the local cache for an immediate state population, issues a first
// fetch, then polls until the context ends. Background fetch failures are
// logged, never surfaced.
func (c *Controller) Run(ctx context.Context) {
	c.loadCache()

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial fetch failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("background fetch failed", zap.Error(err))
			}
		}
	}
}

// ErrRefreshSuppressed reports that a refresh was skipped because the
// controller was busy or cooling down. Callers treat it as a non-event.
var ErrRefreshSuppressed = errors.New("syncer: refresh suppressed")

// Refresh fetches the remote document and reconciles it, unless the
// controller is busy or within the post-save cooldown. Both the poll timer
// and the visibility trigger funnel through here.
func (c *Controller) Refresh(ctx context.Context) error {
	if !c.opMu.TryLock() {
		return ErrRefreshSuppressed
	}
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.clock().Before(c.cooldownUntil) {
		c.mu.Unlock()
		return ErrRefreshSuppressed
	}
	c.state = stateFetching
	c.mu.Unlock()

	defer c.setState(stateIdle)

	doc, err := c.primary.Fetch(ctx)
	if err != nil {
		c.metrics.IncFetch(false)
		return fmt.Errorf("syncer: fetch failed: %w", err)
	}
	c.metrics.IncFetch(true)

	c.mu.Lock()
	c.lastFetchAt = c.clock()
	c.mu.Unlock()

	if changed := c.ingest(doc); changed {
		c.persistCache()
	}
	return nil
}

// SaveSubmission applies a user save action: re-fetch the freshest available
// copy, upsert against it, apply optimistically to local state and cache,
// then push. A failed push clears the cooldown so the next trigger re-fetches
// promptly instead of trusting the optimistic state, and the error surfaces
// to the caller.
func (c *Controller) SaveSubmission(ctx context.Context, submission records.Submission) (records.UpsertResult, error) {
	c.beginSave()
	defer c.endSave()

	// Last-moment re-fetch narrows the window for clobbering a concurrent
	// client's same-day write. Best effort: a failure here must not block
	// the save itself.
	if doc, err := c.primary.Fetch(ctx); err == nil {
		c.metrics.IncFetch(true)
		c.ingest(doc)
	} else {
		c.metrics.IncFetch(false)
		c.logger.Warn("pre-save fetch failed", zap.Error(err))
	}

	result, err := c.records.UpsertDaily(submission)
	if err != nil {
		return records.UpsertResult{}, err
	}
	if !result.Changed {
		// Tombstone with nothing to delete: nothing to persist.
		return result, nil
	}

	if err := c.pushCurrent(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// PushState persists the current local state after an admin mutation
// (department or population changes, profile onboarding) using the same
// pipeline and cooldown rules as a record save.
func (c *Controller) PushState(ctx context.Context) error {
	c.beginSave()
	defer c.endSave()
	return c.pushCurrent(ctx)
}

// RestoreBackup replaces local state with the backup document and pushes it
// to the primary store as the new authoritative copy.
func (c *Controller) RestoreBackup(ctx context.Context) error {
	if c.backup == nil {
		return errMissingBackup
	}

	c.beginSave()
	defer c.endSave()

	doc, err := c.backup.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("syncer: backup fetch failed: %w", err)
	}

	if doc.Records != nil {
		c.records.Replace(doc.Records)
	}
	if doc.PopHistory != nil {
		c.ledger.Replace(doc.PopHistory)
	}
	if doc.Users != nil {
		c.directory.ReplaceProfiles(doc.Users)
	}
	if doc.Departments != nil {
		c.directory.ReplaceDepartments(doc.Departments)
	}
	c.updateGauges()

	return c.pushCurrent(ctx)
}

// Status reports the controller phase and timing for health checks.
type Status struct {
	State         string    `json:"state"`
	LastFetchAt   time.Time `json:"lastFetchAt"`
	CooldownUntil time.Time `json:"cooldownUntil"`
}

// CurrentStatus returns a snapshot of the controller state.
func (c *Controller) CurrentStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:         c.state.String(),
		LastFetchAt:   c.lastFetchAt,
		CooldownUntil: c.cooldownUntil,
	}
}

// SnapshotDocument assembles the full wire document from local state.
func (c *Controller) SnapshotDocument() appdata.Document {
	return appdata.Document{
		Records:     c.records.Snapshot(),
		PopHistory:  c.ledger.Snapshot(),
		Users:       c.directory.Profiles(),
		Departments: c.directory.Departments(),
	}
}

// beginSave claims the pipeline for a save, waiting out any in-flight fetch.
func (c *Controller) beginSave() {
	c.opMu.Lock()
	c.setState(stateSaving)
}

func (c *Controller) endSave() {
	c.setState(stateIdle)
	c.opMu.Unlock()
}

func (c *Controller) setState(next state) {
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
}

// ingest applies a remote document field by field; absent fields leave the
// corresponding local state untouched.
func (c *Controller) ingest(doc appdata.Document) bool {
	changed := false

	if doc.Records != nil {
		outcome := c.records.Reconcile(doc.Records)
		switch {
		case outcome.GuardTripped:
			c.metrics.IncReconcile(metrics.ReconcileGuarded)
		case outcome.Changed:
			c.metrics.IncReconcile(metrics.ReconcileApplied)
			changed = true
		default:
			c.metrics.IncReconcile(metrics.ReconcileNoop)
		}
	}
	if doc.PopHistory != nil {
		c.ledger.Replace(doc.PopHistory)
	}
	if doc.Users != nil {
		c.directory.ReplaceProfiles(doc.Users)
	}
	if doc.Departments != nil {
		c.directory.ReplaceDepartments(doc.Departments)
	}

	c.updateGauges()
	return changed
}

func (c *Controller) pushCurrent(ctx context.Context) error {
	doc := c.SnapshotDocument()
	c.persistCache()

	if err := c.primary.Push(ctx, doc); err != nil {
		c.metrics.IncSave(false)
		c.clearCooldown()
		return fmt.Errorf("syncer: save failed: %w", err)
	}
	c.metrics.IncSave(true)
	c.armCooldown()

	if c.backup != nil {
		go c.pushBackup(doc)
	}
	return nil
}

func (c *Controller) pushBackup(doc appdata.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), backupPushTimeout)
	defer cancel()
	if err := c.backup.Push(ctx, doc); err != nil {
		c.logger.Warn("backup push failed", zap.Error(err))
	}
}

func (c *Controller) armCooldown() {
	c.mu.Lock()
	c.cooldownUntil = c.clock().Add(c.cooldown)
	c.mu.Unlock()
}

func (c *Controller) clearCooldown() {
	c.mu.Lock()
	c.cooldownUntil = time.Time{}
	c.mu.Unlock()
}

func (c *Controller) loadCache() {
	if c.cache == nil {
		return
	}
	doc, ok := c.cache.Load()
	if !ok {
		return
	}
	if doc.Records != nil {
		c.records.Replace(doc.Records)
	}
	if doc.PopHistory != nil {
		c.ledger.Replace(doc.PopHistory)
	}
	if doc.Users != nil {
		c.directory.ReplaceProfiles(doc.Users)
	}
	if doc.Departments != nil {
		c.directory.ReplaceDepartments(doc.Departments)
	}
	c.updateGauges()
	c.logger.Info("loaded state from snapshot cache",
		zap.Int("records", c.records.Len()))
}

func (c *Controller) persistCache() {
	if c.cache == nil {
		return
	}
	if err := c.cache.Store(c.SnapshotDocument()); err != nil {
		c.logger.Warn("snapshot cache write failed", zap.Error(err))
	}
}

func (c *Controller) updateGauges() {
	c.metrics.SetRecordsTotal(c.records.Len())
	writes, deletes := c.records.PendingCounts()
	c.metrics.SetPending(writes, deletes)
}
