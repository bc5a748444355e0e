package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/topdf/jobs"
	"github.com/use-agent/topdf/models"
	"github.com/use-agent/topdf/pipeline"
	"github.com/use-agent/topdf/webhook"
)

// Converter runs one conversion. *pipeline.Converter satisfies it.
type Converter interface {
	Convert(ctx context.Context, req pipeline.Request) (*pipeline.ConversionResult, error)
}

// Runner executes API jobs in the background. At most maxConcurrent
// conversions run at once; the rest wait queued.
type Runner struct {
	base              context.Context
	store             *jobs.Store
	conv              Converter
	notifier          *webhook.Notifier
	sem               chan struct{}
	credentialTimeout time.Duration
}

// NewRunner creates a Runner. Jobs are canceled when ctx ends. notifier
// may be nil to disable webhooks.
func NewRunner(ctx context.Context, store *jobs.Store, conv Converter, notifier *webhook.Notifier, maxConcurrent int, credentialTimeout time.Duration) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		base:              ctx,
		store:             store,
		conv:              conv,
		notifier:          notifier,
		sem:               make(chan struct{}, maxConcurrent),
		credentialTimeout: credentialTimeout,
	}
}

// Store returns the job store.
func (r *Runner) Store() *jobs.Store { return r.store }

// Running is the number of conversions holding a slot.
func (r *Runner) Running() int { return len(r.sem) }

// Capacity is the maximum number of concurrent conversions.
func (r *Runner) Capacity() int { return cap(r.sem) }

// Submit registers a job for req and starts it in the background.
func (r *Runner) Submit(req models.ConvertRequest) *jobs.Job {
	job := r.store.Create(req.URL)
	go r.run(job, req)
	return job
}

func (r *Runner) run(job *jobs.Job, req models.ConvertRequest) {
	defer r.notify(job, req)

	// ── 1. Wait for a slot ──────────────────────────────────────────
	select {
	case r.sem <- struct{}{}:
	case <-job.Done():
		return
	case <-r.base.Done():
		job.Fail(models.NewConvertError(models.KindCanceled, "server shutting down", r.base.Err()))
		return
	}
	defer func() { <-r.sem }()

	// ── 2. Convert ──────────────────────────────────────────────────
	ctx := job.Start(r.base)
	if models.IsTerminal(job.Status()) {
		return
	}
	slog.Info("job started", "job_id", job.ID(), "url", req.URL)

	res, err := r.conv.Convert(ctx, pipeline.Request{
		URL:         req.URL,
		Email:       req.Email,
		Passcode:    req.Passcode,
		OutputName:  req.Name,
		Progress:    job.SetProgress,
		Credentials: job.CredentialFunc(r.credentialTimeout),
	})

	// ── 3. Record the outcome ───────────────────────────────────────
	if err != nil {
		job.Fail(err)
		return
	}
	job.Complete(&models.ConversionOutput{Path: res.Path, Name: res.Name, PageCount: res.PageCount})
}

func (r *Runner) notify(job *jobs.Job, req models.ConvertRequest) {
	if r.notifier == nil || req.WebhookURL == "" {
		return
	}
	snap := job.Snapshot()
	ev := &webhook.Event{
		Type:      webhook.EventFailed,
		JobID:     snap.ID,
		URL:       snap.URL,
		Timestamp: time.Now().Unix(),
		Result:    snap.Result,
		Error:     snap.Error,
	}
	if snap.Status == models.JobCompleted {
		ev.Type = webhook.EventCompleted
	}
	r.notifier.SendAsync(req.WebhookURL, req.WebhookSecret, ev)
}
