package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsentinel/core/internal/categorize"
	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/store"
)

// Worker is the cooperative, single-threaded CategorizationWorker from
// spec.md §4.I: dequeue, transition to IN_PROGRESS, run the engine,
// transition to COMPLETED or FAILED. No retry on the worker — retries are
// a policy decision of the caller.
//
// engineTemplate carries every analyzer/cache/config field but a nil
// Store — each job resolves its own user's Store from registry before
// running, since one JobQueue and one Worker serve every tenant but
// spec.md §4.A forbids handing the same Store to two users.
type Worker struct {
	queue          *Queue
	jobStore       *JobStore
	registry       *store.Registry
	engineTemplate categorize.Engine
	log            zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewWorker builds a Worker over queue, consuming jobs via jobStore and
// running each through a per-user clone of engineTemplate (its Store field
// is ignored and overwritten per job via registry.Get).
func NewWorker(queue *Queue, jobStore *JobStore, registry *store.Registry, engineTemplate categorize.Engine, log zerolog.Logger) *Worker {
	return &Worker{
		queue:          queue,
		jobStore:       jobStore,
		registry:       registry,
		engineTemplate: engineTemplate,
		log:            log.With().Str("component", "categorization_worker").Logger(),
	}
}

// Run blocks, processing jobs until Stop is called or ctx is cancelled.
// Restarting Run after a prior Stop resumes processing from the queue's
// current head; any job left IN_PROGRESS by a prior run is left alone — the
// restarted worker only picks up subsequent PENDING items.
func (w *Worker) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	done := w.doneCh
	w.mu.Unlock()
	defer close(done)

	for {
		item, ok := w.queue.DequeueCtx(runCtx)
		if !ok {
			return
		}
		// processOne runs to completion on a background context even if
		// runCtx was just cancelled, so waitForShutdown's guarantee (the
		// current job's status transition is persisted before returning)
		// holds regardless of when Stop() was called mid-job.
		w.processOne(context.Background(), item)
		if runCtx.Err() != nil {
			return
		}
	}
}

// Stop signals shutdown; the worker finishes its current job (if any) and
// then returns from Run.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// WaitForShutdown blocks until the current job's status transition has
// been persisted and Run has returned.
func (w *Worker) WaitForShutdown() {
	w.mu.Lock()
	done := w.doneCh
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) processOne(ctx context.Context, item Item) {
	job, err := w.jobStore.Get(ctx, item.JobID, item.UserID)
	if err != nil {
		w.log.Warn().Err(err).Str("job_id", item.JobID).Msg("job vanished before processing, skipping")
		return
	}

	if err := w.jobStore.Transition(ctx, item.JobID, item.UserID, domain.JobInProgress, 0, ""); err != nil {
		w.log.Warn().Err(err).Str("job_id", item.JobID).Msg("failed to start job")
		return
	}

	userStore, err := w.registry.Get(item.UserID)
	if err != nil {
		if ferr := w.jobStore.Transition(ctx, item.JobID, item.UserID, domain.JobFailed, job.Progress, fmt.Sprintf("resolve user store: %v", err)); ferr != nil {
			w.log.Error().Err(ferr).Str("job_id", item.JobID).Msg("failed to record job failure")
		}
		return
	}
	engine := w.engineTemplate
	engine.Store = userStore

	opts := optionsFromParams(job.Params, item.UserID)
	result, err := engine.CategorizeEmails(ctx, opts)
	if err != nil {
		if ferr := w.jobStore.Transition(ctx, item.JobID, item.UserID, domain.JobFailed, job.Progress, err.Error()); ferr != nil {
			w.log.Error().Err(ferr).Str("job_id", item.JobID).Msg("failed to record job failure")
		}
		return
	}

	if serr := w.jobStore.SetResults(ctx, item.JobID, item.UserID, resultToMap(result)); serr != nil {
		w.log.Error().Err(serr).Str("job_id", item.JobID).Msg("failed to persist job results")
	}
	if terr := w.jobStore.Transition(ctx, item.JobID, item.UserID, domain.JobCompleted, 100, ""); terr != nil {
		w.log.Error().Err(terr).Str("job_id", item.JobID).Msg("failed to complete job")
	}
}

func optionsFromParams(params map[string]interface{}, userID string) categorize.Options {
	opts := categorize.Options{UserID: userID}
	if params == nil {
		return opts
	}
	if fr, ok := params["forceRefresh"].(bool); ok {
		opts.ForceRefresh = fr
	}
	if y, ok := params["year"].(float64); ok { // JSON numbers decode as float64
		year := int(y)
		opts.Year = &year
	}
	return opts
}

func resultToMap(r categorize.Result) map[string]interface{} {
	return map[string]interface{}{
		"processed": r.Processed,
		"categories": map[string]int{
			"high":   r.Categories.High,
			"medium": r.Categories.Medium,
			"low":    r.Categories.Low,
		},
		"insights": map[string]interface{}{
			"spam_detection_rate":       r.Insights.SpamDetectionRate,
			"avg_importance_confidence": r.Insights.AvgImportanceConfidence,
		},
		"completed_at": time.Now().UnixMilli(),
	}
}
