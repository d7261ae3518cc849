package engine

import (
	"context"
	"encoding/json"
	"time"

	"imovelworker/internal/checkpoint"
	"imovelworker/internal/dedupe"
	"imovelworker/internal/extractor"
	"imovelworker/internal/fetcher"
	"imovelworker/internal/listing"
	"imovelworker/logger"
	"imovelworker/pkg/errors"
	"imovelworker/services/publisher"
)

// State represents the engine lifecycle state
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StatePaused    State = "paused"
)

// Options configures the engine's retry and termination policy.
type Options struct {
	// MaxPages is the highest page index fetched in one run
	MaxPages int
	// TargetListings ends the run once this many listings are collected
	TargetListings int
	// EmptyPageLimit ends the run after this many consecutive empty pages
	EmptyPageLimit int
	// MaxRetries bounds retries of a transiently failing page fetch
	MaxRetries int
	// RetryDelay is the base of the exponential backoff between retries
	RetryDelay time.Duration
}

// Summary is the user-visible outcome of a run, reported regardless of how
// the run ended.
type Summary struct {
	Outcome        State
	PagesProcessed int
	PagesFailed    int
	Retries        int
	Listings       int
	Duration       time.Duration
}

// Engine drives one sequential collection run: fetch a page, extract its
// records, dedupe, accumulate, checkpoint, decide whether to continue. It
// exclusively owns the CollectionState while running.
type Engine struct {
	fetcher fetcher.Fetcher
	ext     *extractor.Extractor
	store   checkpoint.Store
	pub     publisher.Publisher // optional
	opts    Options
	log     *logger.Logger

	state  State
	cs     *listing.CollectionState
	ledger *dedupe.Ledger
}

// New creates an engine. pub may be nil when no downstream publishing is
// configured.
func New(f fetcher.Fetcher, ext *extractor.Extractor, store checkpoint.Store, pub publisher.Publisher, opts Options) *Engine {
	return &Engine{
		fetcher: f,
		ext:     ext,
		store:   store,
		pub:     pub,
		opts:    opts,
		log:     logger.ForEngine(),
		state:   StateIdle,
	}
}

// State returns the engine state
func (e *Engine) State() State {
	return e.state
}

// Results returns the accumulated listings in discovery order
func (e *Engine) Results() []listing.Listing {
	if e.cs == nil {
		return nil
	}
	return e.cs.Results
}

// Summary returns the run summary
func (e *Engine) Summary() Summary {
	s := Summary{Outcome: e.state}
	if e.cs != nil {
		s.PagesProcessed = e.cs.Counters.PagesProcessed
		s.PagesFailed = e.cs.Counters.PagesFailed
		s.Retries = e.cs.Counters.Retries
		s.Listings = len(e.cs.Results)
		s.Duration = time.Since(e.cs.RunStartedAt)
	}
	return s
}

// Run executes the collection to a terminal state. Cancelling ctx pauses the
// run between pages after a checkpoint; a paused run resumes exactly like a
// crash-interrupted one. The returned error is non-nil only for StateFailed.
func (e *Engine) Run(ctx context.Context) (State, error) {
	e.state = StateRunning
	defer e.logSummary()

	if err := e.restore(); err != nil {
		e.state = StateFailed
		return e.state, err
	}

	startPage := e.cs.LastPageCompleted + 1
	if startPage > 1 {
		e.log.Info().
			Int("page", startPage).
			Int("listings", len(e.cs.Results)).
			Msg("Resuming from checkpoint")
	}

	emptyStreak := 0
	for page := startPage; ; page++ {
		if ctx.Err() != nil {
			return e.pause()
		}
		if page > e.opts.MaxPages {
			return e.complete()
		}

		records, err := e.fetchWithRetry(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return e.pause()
			}
			// Permanent fetch failure: keep the last good checkpoint valid
			// and save a best-effort final one.
			e.store.Save(e.cs)
			e.state = StateFailed
			return e.state, err
		}

		admitted := e.processRecords(records, page)

		e.cs.LastPageCompleted = page
		e.cs.Counters.PagesProcessed++
		if len(records) == 0 {
			emptyStreak++
			e.cs.Counters.EmptyPages++
			e.log.Warn().Int("page", page).Int("streak", emptyStreak).Msg("Page returned no records")
		} else {
			emptyStreak = 0
		}

		if err := e.checkpoint(); err != nil {
			// Continuing without durable progress risks unbounded duplicate
			// work on resume.
			e.state = StateFailed
			return e.state, err
		}

		e.log.Info().
			Int("page", page).
			Int("admitted", admitted).
			Int("total", len(e.cs.Results)).
			Msg("Page processed")

		if emptyStreak >= e.opts.EmptyPageLimit {
			e.log.Info().Int("streak", emptyStreak).Msg("Empty page limit reached, assuming end of inventory")
			return e.complete()
		}
		if e.opts.TargetListings > 0 && len(e.cs.Results) >= e.opts.TargetListings {
			e.log.Info().Int("target", e.opts.TargetListings).Msg("Target listing count reached")
			return e.complete()
		}
		if page >= e.opts.MaxPages {
			return e.complete()
		}
	}
}

// restore loads the persisted state or initializes a fresh one, and rebuilds
// the dedupe ledger from it.
func (e *Engine) restore() error {
	state, err := e.store.Load()
	if err != nil {
		return err
	}
	if state == nil {
		state = listing.NewCollectionState(time.Now())
	}
	e.cs = state
	e.ledger = dedupe.Restore(state.SeenIDs)
	return nil
}

// fetchWithRetry fetches one page, retrying transient failures with
// exponential backoff. Exhausted retries degrade to an empty page; permanent
// failures propagate.
func (e *Engine) fetchWithRetry(ctx context.Context, page int) ([]listing.RawRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			e.cs.Counters.Retries++
			backoff := e.opts.RetryDelay << (attempt - 1)
			e.log.Warn().
				Int("page", page).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying page fetch")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		records, err := e.fetcher.FetchPage(ctx, page)
		if err == nil {
			return records, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	// Exhausted retries count as an empty page rather than ending the run
	e.cs.Counters.PagesFailed++
	e.log.Error().Int("page", page).Err(lastErr).Msg("Page failed after all retries, treating as empty")
	return nil, nil
}

// processRecords extracts, dedupes and accumulates one page's records,
// returning the number admitted.
func (e *Engine) processRecords(records []listing.RawRecord, page int) int {
	admitted := 0
	for _, rec := range records {
		l, err := e.ext.Extract(rec, page)
		if err != nil {
			// Rejected records are dropped silently; they are an extraction
			// limitation, not a run error.
			e.log.Debug().Err(err).Msg("Record rejected")
			continue
		}
		if !e.ledger.Admit(l.ID) {
			continue
		}

		e.cs.Results = append(e.cs.Results, *l)
		admitted++
		e.publish(l)
	}
	return admitted
}

// publish forwards an admitted listing downstream, best-effort.
func (e *Engine) publish(l *listing.Listing) {
	if e.pub == nil {
		return
	}
	data, err := json.Marshal(l)
	if err != nil {
		e.log.Warn().Err(err).Str("id", l.ID).Msg("Failed to encode listing for publishing")
		return
	}
	if err := e.pub.Publish(l.Portal, data); err != nil {
		e.log.Warn().Err(err).Str("id", l.ID).Msg("Failed to publish listing")
	}
}

// checkpoint commits the current state durably, once per completed page.
func (e *Engine) checkpoint() error {
	e.cs.SeenIDs = e.ledger.Snapshot()
	e.cs.LastCheckpointAt = time.Now()
	return e.store.Save(e.cs)
}

// pause checkpoints and leaves the run resumable.
func (e *Engine) pause() (State, error) {
	if err := e.checkpoint(); err != nil {
		e.state = StateFailed
		return e.state, err
	}
	e.state = StatePaused
	return e.state, nil
}

// complete saves the final checkpoint, retires it, and trims any downstream
// streams.
func (e *Engine) complete() (State, error) {
	if err := e.checkpoint(); err != nil {
		e.state = StateFailed
		return e.state, err
	}
	if err := e.store.Archive(); err != nil {
		e.state = StateFailed
		return e.state, err
	}
	if e.pub != nil {
		if err := e.pub.TrimStreams(); err != nil {
			e.log.Warn().Err(err).Msg("Failed to trim streams")
		}
	}
	e.state = StateCompleted
	return e.state, nil
}

func (e *Engine) logSummary() {
	s := e.Summary()
	e.log.Info().
		Str("outcome", string(s.Outcome)).
		Int("pages_processed", s.PagesProcessed).
		Int("pages_failed", s.PagesFailed).
		Int("retries", s.Retries).
		Int("listings", s.Listings).
		Dur("duration", s.Duration).
		Msg("Run finished")
}
