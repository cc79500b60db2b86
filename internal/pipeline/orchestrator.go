package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
	"github.com/sha1n/mcp-repo-ingest/internal/gitrepos"
	"github.com/sha1n/mcp-repo-ingest/internal/jobs"
)

// DefaultMaxParallelJobs is the maximum number of jobs running steps at once
const DefaultMaxParallelJobs = 4

// ErrShuttingDown indicates a submission after Shutdown was called
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// errCanceled is the cause attached to jobs stopped through Cancel
var errCanceled = errors.New("job canceled")

// Orchestrator is the only component that runs job steps. Every job runs in its own
// goroutine with a cancellable context; at most maxParallel jobs run steps at once.
type Orchestrator struct {
	store  jobs.Store
	steps  []Step
	logger *slog.Logger

	sem     chan struct{}
	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewOrchestrator creates an orchestrator running steps in order.
// A non-positive maxParallel selects DefaultMaxParallelJobs.
func NewOrchestrator(store jobs.Store, steps []Step, maxParallel int, logger *slog.Logger) *Orchestrator {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelJobs
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		store:   store,
		steps:   steps,
		logger:  logger,
		sem:     make(chan struct{}, maxParallel),
		baseCtx: ctx,
		stop:    stop,
		running: make(map[string]context.CancelCauseFunc),
	}
}

// Submit creates a pending job and starts it asynchronously.
// The credential only reaches the clone step and is never stored.
func (o *Orchestrator) Submit(ref gitrepos.RepoRef, credential, sessionID string) (*jobs.Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrShuttingDown
	}

	job := o.store.Create(ref.CloneURL, ref.ID(), sessionID)
	ctx, cancel := context.WithCancelCause(o.baseCtx)
	o.running[job.ID] = cancel
	o.wg.Add(1)

	r := &Run{
		JobID:      job.ID,
		SessionID:  sessionID,
		Ref:        ref,
		credential: credential,
	}
	go o.run(ctx, r)

	o.logger.Info("Submitted ingestion job", "job_id", job.ID, "repo_id", ref.ID(), "url", gitrepos.SafeURL(ref.CloneURL))
	return job, nil
}

// Cancel stops an in-flight job. It returns false when the job already settled.
func (o *Orchestrator) Cancel(jobID string) (bool, error) {
	if _, err := o.store.Get(jobID); err != nil {
		return false, err
	}

	o.mu.Lock()
	cancel, ok := o.running[jobID]
	o.mu.Unlock()
	if !ok {
		return false, nil
	}
	cancel(errCanceled)
	return true, nil
}

// Wait blocks until every submitted job has settled.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown rejects new submissions, cancels running jobs and waits for them to settle
// or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, r *Run) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.running[r.JobID]; ok {
			cancel(nil)
			delete(o.running, r.JobID)
		}
		o.mu.Unlock()
	}()
	defer o.release(r)

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		o.fail(r, "start", o.stopCause(ctx))
		return
	}

	current := "start"
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("Step panicked", "job_id", r.JobID, "step", current, "stack", string(debug.Stack()))
			o.fail(r, current, fmt.Errorf("panic: %v", p))
		}
	}()

	for _, step := range o.steps {
		current = step.Name()
		if ctx.Err() != nil {
			o.fail(r, step.Name(), o.stopCause(ctx))
			return
		}

		if _, err := o.store.Update(r.JobID, jobs.Update{Status: step.Status(), Message: step.Message(r)}); err != nil {
			o.logger.Error("Failed to advance job", "job_id", r.JobID, "step", step.Name(), "error", err)
			return
		}

		fragment, err := step.Run(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				err = fmt.Errorf("%w: %w", o.stopCause(ctx), err)
			}
			o.fail(r, step.Name(), err)
			return
		}

		if fragment != nil {
			if _, err := o.store.Update(r.JobID, jobs.Update{Status: step.Status(), Message: step.Message(r), Result: fragment}); err != nil {
				o.logger.Error("Failed to record step result", "job_id", r.JobID, "step", step.Name(), "error", err)
				return
			}
		}
		o.logger.Debug("Step finished", "job_id", r.JobID, "step", step.Name())
	}

	o.complete(r)
}

func (o *Orchestrator) complete(r *Run) {
	metas := make([]domain.ChunkMeta, len(r.Chunks))
	for i, c := range r.Chunks {
		metas[i] = c.Meta()
	}

	result := &jobs.Fragment{
		Commit:     r.Commit,
		ChunkCount: jobs.IntPtr(len(r.Chunks)),
		Chunks:     metas,
	}
	if r.Summary.Collection != "" {
		result.Index = &jobs.IndexSummary{Collection: r.Summary.Collection, StoredCount: r.Summary.StoredCount}
	}

	msg := fmt.Sprintf("Indexed %d chunks from %d files", len(r.Chunks), r.Stats.FilesChunked)
	if _, err := o.store.Update(r.JobID, jobs.Update{Status: jobs.StatusCompleted, Message: msg, Result: result}); err != nil {
		o.logger.Error("Failed to complete job", "job_id", r.JobID, "error", err)
		return
	}

	o.logger.Info("Ingestion job completed",
		"job_id", r.JobID,
		"repo_id", r.Ref.ID(),
		"chunks", len(r.Chunks),
		"files", r.Stats.FilesChunked,
		"skipped", r.Stats.FilesSkipped)
}

// fail marks the job failed. The error text is redacted here, once, for every step.
func (o *Orchestrator) fail(r *Run, step string, err error) {
	detail := gitrepos.Redact(err.Error(), r.credential)

	if _, uerr := o.store.Update(r.JobID, jobs.Update{
		Status:  jobs.StatusFailed,
		Message: fmt.Sprintf("Step %s failed", step),
		Error:   detail,
	}); uerr != nil {
		o.logger.Error("Failed to mark job failed", "job_id", r.JobID, "error", uerr)
		return
	}

	o.logger.Error("Ingestion job failed", "job_id", r.JobID, "step", step, "error", detail)
}

// release unlocks the job's workspace. Failures are attached to the settled job.
func (o *Orchestrator) release(r *Run) {
	if r.Workspace == nil {
		return
	}
	if err := r.Workspace.Release(); err != nil {
		o.logger.Warn("Failed to release workspace", "job_id", r.JobID, "error", err)
		_ = o.store.AppendDiagnostic(r.JobID, "workspace release failed: "+err.Error())
	}
}

func (o *Orchestrator) stopCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}
