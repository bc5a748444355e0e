package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/topdf/auth"
	"github.com/use-agent/topdf/models"
)

func TestStore_CreateGet(t *testing.T) {
	s := NewStore(10, time.Hour)
	j := s.Create("https://docsend.com/view/abc")

	if !strings.HasPrefix(j.ID(), "conv-") {
		t.Errorf("ID = %q", j.ID())
	}
	got, ok := s.Get(j.ID())
	if !ok || got != j {
		t.Fatal("job not found")
	}
	if got.Status() != models.JobQueued {
		t.Errorf("Status = %q", got.Status())
	}
	if s.Active() != 1 {
		t.Errorf("Active = %d", s.Active())
	}
}

func TestStore_EvictionCancelsUnfinished(t *testing.T) {
	s := NewStore(1, time.Hour)
	first := s.Create("a")
	s.Create("b")

	if _, ok := s.Get(first.ID()); ok {
		t.Error("first job should be evicted")
	}
	select {
	case <-first.Done():
	default:
		t.Error("evicted queued job should be finished")
	}
	if first.Status() != models.JobCanceled {
		t.Errorf("Status = %q", first.Status())
	}
}

func TestJob_Lifecycle(t *testing.T) {
	j := newJob("id", "u")
	ctx := j.Start(context.Background())
	if j.Status() != models.JobRunning {
		t.Fatalf("Status = %q", j.Status())
	}

	j.SetProgress(2, 5)
	j.Complete(&models.ConversionOutput{Path: "/x.pdf", Name: "x", PageCount: 5})

	snap := j.Snapshot()
	if snap.Status != models.JobCompleted || snap.Progress.Current != 2 || snap.Result.PageCount != 5 {
		t.Errorf("snapshot = %+v", snap)
	}
	if ctx.Err() == nil {
		t.Error("job context should end when the job finishes")
	}
	if err := j.Cancel(); !errors.Is(err, ErrFinished) {
		t.Errorf("Cancel after finish = %v", err)
	}
}

func TestJob_FailKinds(t *testing.T) {
	j := newJob("id", "u")
	j.Start(context.Background())
	j.Fail(models.NewConvertError(models.KindInvalidCredentials, "rejected", nil).WithStage("auth"))

	snap := j.Snapshot()
	if snap.Status != models.JobFailed {
		t.Errorf("Status = %q", snap.Status)
	}
	if snap.Error == nil || snap.Error.Code != "INVALID_CREDENTIALS" || snap.Error.Stage != "auth" {
		t.Errorf("Error = %+v", snap.Error)
	}

	j2 := newJob("id2", "u")
	j2.Start(context.Background())
	j2.Fail(errors.New("disk full"))
	if e := j2.Snapshot().Error; e == nil || e.Code != models.ErrCodeInternal {
		t.Errorf("Error = %+v", e)
	}
}

func TestJob_CancelRunning(t *testing.T) {
	j := newJob("id", "u")
	ctx := j.Start(context.Background())

	if err := j.Cancel(); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() == nil {
		t.Fatal("context not canceled")
	}
	// The conversion reports whatever error the teardown produced.
	j.Fail(models.NewConvertError(models.KindPageLoad, "target closed", ctx.Err()))
	if j.Status() != models.JobCanceled {
		t.Errorf("Status = %q, want canceled", j.Status())
	}
}

func TestJob_CancelQueuedThenStart(t *testing.T) {
	j := newJob("id", "u")
	if err := j.Cancel(); err != nil {
		t.Fatal(err)
	}
	ctx := j.Start(context.Background())
	if ctx.Err() == nil {
		t.Error("starting a canceled job should yield a done context")
	}
	if j.Status() != models.JobCanceled {
		t.Errorf("Status = %q", j.Status())
	}
}

func TestJob_CredentialRoundTrip(t *testing.T) {
	j := newJob("id", "u")
	ctx := j.Start(context.Background())
	ask := j.CredentialFunc(time.Minute)

	if err := j.Provide(models.CredentialsRequest{Email: "early@x.co"}); !errors.Is(err, ErrNotAwaiting) {
		t.Errorf("Provide before asking = %v", err)
	}

	type answer struct {
		creds auth.Credentials
		err   error
	}
	got := make(chan answer, 1)
	go func() {
		c, err := ask(ctx, auth.RequirementEmailAndPasscode)
		got <- answer{c, err}
	}()

	waitStatus(t, j, models.JobAwaitingPasscode)
	if err := j.Provide(models.CredentialsRequest{Email: "a@b.co", Passcode: "1234"}); err != nil {
		t.Fatalf("Provide: %v", err)
	}
	if s := j.Status(); s != models.JobRunning {
		t.Errorf("Status after Provide = %q, want running", s)
	}

	a := <-got
	if a.err != nil || a.creds.Email != "a@b.co" || a.creds.Passcode != "1234" {
		t.Errorf("answer = %+v", a)
	}
	if j.Status() != models.JobRunning {
		t.Errorf("Status = %q, want running again", j.Status())
	}
}

func TestJob_CredentialDeclined(t *testing.T) {
	j := newJob("id", "u")
	ctx := j.Start(context.Background())
	ask := j.CredentialFunc(time.Minute)

	errc := make(chan error, 1)
	go func() {
		_, err := ask(ctx, auth.RequirementEmail)
		errc <- err
	}()

	waitStatus(t, j, models.JobAwaitingEmail)
	if err := j.Provide(models.CredentialsRequest{Cancel: true}); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; !errors.Is(err, auth.ErrCanceled) {
		t.Errorf("err = %v", err)
	}
}

func TestJob_CredentialTimeout(t *testing.T) {
	j := newJob("id", "u")
	ctx := j.Start(context.Background())

	_, err := j.CredentialFunc(20*time.Millisecond)(ctx, auth.RequirementEmail)
	if !errors.Is(err, auth.ErrCanceled) {
		t.Errorf("err = %v", err)
	}
}

func waitStatus(t *testing.T, j *Job, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status never became %q (is %q)", want, j.Status())
}
