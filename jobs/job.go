// Package jobs tracks asynchronous conversions started through the API,
// including pausing a running conversion until credentials arrive.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/topdf/auth"
	"github.com/use-agent/topdf/models"
)

var (
	// ErrNotAwaiting is returned when credentials are posted to a job that
	// is not waiting for any.
	ErrNotAwaiting = errors.New("jobs: job is not awaiting credentials")
	// ErrFinished is returned when a finished job is canceled.
	ErrFinished = errors.New("jobs: job already finished")
)

type credentialReply struct {
	creds  auth.Credentials
	cancel bool
}

// Job is one conversion. All fields are guarded by mu; read them through
// Snapshot.
type Job struct {
	mu sync.Mutex

	id        string
	url       string
	status    string
	progress  models.Progress
	result    *models.ConversionOutput
	err       *models.ErrorDetail
	createdAt time.Time
	updatedAt time.Time

	replies  chan credentialReply
	cancel   context.CancelFunc
	canceled bool
	done     chan struct{}
}

func newJob(id, url string) *Job {
	now := time.Now()
	return &Job{
		id:        id,
		url:       url,
		status:    models.JobQueued,
		createdAt: now,
		updatedAt: now,
		replies:   make(chan credentialReply, 1),
		done:      make(chan struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// URL returns the link being converted.
func (j *Job) URL() string { return j.url }

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Status returns the current status.
func (j *Job) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Snapshot returns the API view of the job.
func (j *Job) Snapshot() models.JobResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.JobResponse{
		ID:        j.id,
		URL:       j.url,
		Status:    j.status,
		Progress:  j.progress,
		Result:    j.result,
		Error:     j.err,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
}

// Start binds the job to ctx and marks it running. The returned context
// ends when the job is canceled; it is already done if the job was
// canceled while queued.
func (j *Job) Start(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	j.mu.Lock()
	j.cancel = cancel
	switch {
	case models.IsTerminal(j.status):
		cancel()
	case j.status == models.JobQueued:
		j.setLocked(models.JobRunning)
	}
	j.mu.Unlock()
	return ctx
}

// SetProgress records captured pages.
func (j *Job) SetProgress(current, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = models.Progress{Current: current, Total: total}
	j.updatedAt = time.Now()
}

// Complete marks the job completed.
func (j *Job) Complete(out *models.ConversionOutput) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if models.IsTerminal(j.status) {
		return
	}
	j.result = out
	j.setLocked(models.JobCompleted)
	j.finishLocked()
}

// Fail marks the job failed, or canceled when err is a cancellation.
func (j *Job) Fail(err error) {
	detail := &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
	if ce, ok := models.AsConvertError(err); ok {
		detail = ce.ToDetail()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if models.IsTerminal(j.status) {
		return
	}
	j.err = detail
	if j.canceled || errors.Is(err, models.ErrCanceled) {
		j.setLocked(models.JobCanceled)
	} else {
		j.setLocked(models.JobFailed)
	}
	j.finishLocked()
}

// Cancel aborts the job. A queued job finishes immediately; a running job
// finishes once its conversion notices the canceled context.
func (j *Job) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if models.IsTerminal(j.status) {
		return ErrFinished
	}
	j.canceled = true
	if j.cancel != nil {
		j.cancel()
		return nil
	}
	j.err = &models.ErrorDetail{Code: string(models.KindCanceled), Message: "canceled before start"}
	j.setLocked(models.JobCanceled)
	j.finishLocked()
	return nil
}

// Provide answers a pending credential request.
func (j *Job) Provide(req models.CredentialsRequest) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != models.JobAwaitingEmail && j.status != models.JobAwaitingPasscode {
		return ErrNotAwaiting
	}
	select {
	case j.replies <- credentialReply{
		creds:  auth.Credentials{Email: req.Email, Passcode: req.Passcode},
		cancel: req.Cancel,
	}:
		// Answered jobs read as running at once so pollers do not see a
		// stale awaiting status.
		j.setLocked(models.JobRunning)
		return nil
	default:
		// An answer is already queued.
		return ErrNotAwaiting
	}
}

// CredentialFunc returns the callback a conversion uses to ask for missing
// credentials. It parks the job in an awaiting status until Provide is
// called, the job is canceled, or timeout passes.
func (j *Job) CredentialFunc(timeout time.Duration) auth.CredentialFunc {
	return func(ctx context.Context, need auth.Requirement) (auth.Credentials, error) {
		status := models.JobAwaitingEmail
		if need == auth.RequirementEmailAndPasscode {
			status = models.JobAwaitingPasscode
		}
		j.mu.Lock()
		j.setLocked(status)
		j.mu.Unlock()
		slog.Info("job awaiting credentials", "job_id", j.id, "need", need)

		defer func() {
			j.mu.Lock()
			if j.status == status {
				j.setLocked(models.JobRunning)
			}
			j.mu.Unlock()
		}()

		var timer <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			timer = t.C
		}

		select {
		case reply := <-j.replies:
			if reply.cancel {
				return auth.Credentials{}, auth.ErrCanceled
			}
			return reply.creds, nil
		case <-ctx.Done():
			return auth.Credentials{}, ctx.Err()
		case <-timer:
			slog.Warn("job gave up waiting for credentials", "job_id", j.id, "waited", timeout)
			return auth.Credentials{}, auth.ErrCanceled
		}
	}
}

func (j *Job) setLocked(status string) {
	j.status = status
	j.updatedAt = time.Now()
}

func (j *Job) finishLocked() {
	if j.cancel != nil {
		j.cancel()
	}
	select {
	case <-j.done:
	default:
		close(j.done)
	}
}
