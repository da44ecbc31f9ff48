package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/metrics"
)

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	reg, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestRunOnceRunsAllJobsAndCombinesFailures(t *testing.T) {
	ok := &testJob{name: "notification-cleanup"}
	bad := &testJob{name: "outbox-retention", err: errors.New("boom")}
	worse := &testJob{name: "reset-token-purge", err: errors.New("gone")}
	lock := &fakeLock{}
	reg := prometheus.NewRegistry()

	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: mustRegistry(t, ok, bad, worse),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.RunOnce(context.Background())
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 combined failures, got %d (%v)", got, err)
	}
	if !strings.Contains(err.Error(), "outbox-retention: boom") {
		t.Fatalf("expected failure tagged with job name, got %v", err)
	}
	for _, job := range []*testJob{ok, bad, worse} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
	}
	if lock.released != 1 {
		t.Fatalf("expected lock released once, got %d", lock.released)
	}
	if got := runs(t, reg, "failure"); got != 2 {
		t.Fatalf("expected 2 failures recorded, got %v", got)
	}
	if got := runs(t, reg, "success"); got != 1 {
		t.Fatalf("expected 1 success recorded, got %v", got)
	}
}

func TestRunOnceSelectsNamedJobs(t *testing.T) {
	a := &testJob{name: "notification-cleanup"}
	b := &testJob{name: "outbox-retention"}
	service, _ := NewService(ServiceParams{Logger: quietLogger(), Registry: mustRegistry(t, a, b), Lock: &fakeLock{}})

	if err := service.RunOnce(context.Background(), "outbox-retention"); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if a.runs != 0 || b.runs != 1 {
		t.Fatalf("expected only outbox-retention to run, got a=%d b=%d", a.runs, b.runs)
	}
	if err := service.RunOnce(context.Background(), "nope"); err == nil {
		t.Fatal("expected unknown job error")
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "notification-cleanup"}
	lock := &fakeLock{held: true}
	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: mustRegistry(t, job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 || lock.released != 0 {
		t.Fatalf("expected no runs while another instance holds the lock, runs=%d released=%d", job.runs, lock.released)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "notification-cleanup"}
	service, _ := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: mustRegistry(t, job),
		Lock:     &fakeLock{},
		Interval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the first cycle to run before stopping, got %d", job.runs)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(&testJob{name: "a"}, &testJob{name: "a"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
	if _, err := NewRegistry(&testJob{}); err == nil {
		t.Fatal("expected unnamed job error")
	}
	reg := mustRegistry(t, &testJob{name: "a"}, nil, &testJob{name: "b"})
	jobs := reg.Jobs()
	if len(jobs) != 2 || jobs[0].Name() != "a" || jobs[1].Name() != "b" {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if reg.Jobs()[0] == nil {
		t.Fatal("Jobs must return a copy")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: quietLogger()}); err == nil {
		t.Fatal("expected error without lock")
	}
}

func runs(t *testing.T, reg *prometheus.Registry, status string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != "loyalty_cron_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == status {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
