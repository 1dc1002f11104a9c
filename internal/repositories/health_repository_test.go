package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/lepax/api/internal/domain"
)

func TestDependencyHealthRepositoryRequiresChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatal("expected error for empty check set")
	}
}

func TestDependencyHealthCollectAllHealthy(t *testing.T) {
	now := time.Date(2025, time.July, 10, 9, 30, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return nil }},
	}, WithDependencyClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK {
			t.Fatalf("check %s: expected ok, got %s", name, check.Status)
		}
		if check.Detail != "ok" {
			t.Fatalf("check %s: unexpected detail %q", name, check.Detail)
		}
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected generated_at %s", report.GeneratedAt)
	}
}

func TestDependencyHealthCollectDegradedOnFailure(t *testing.T) {
	probeErr := errors.New("publish refused")
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return probeErr }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded status, got %s", report.Status)
	}
	check := report.Checks["pubsub"]
	if check.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded pubsub check, got %s", check.Status)
	}
	if check.Error != probeErr.Error() {
		t.Fatalf("unexpected check error %q", check.Error)
	}
	if report.Checks["firestore"].Status != domain.HealthStatusOK {
		t.Fatal("healthy check should stay ok alongside a failing one")
	}
}

func TestDependencyHealthCollectTimesOutSlowCheck(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 10 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
	check := report.Checks["firestore"]
	if check.Detail != "timeout" {
		t.Fatalf("expected timeout detail, got %q", check.Detail)
	}
}

func TestDependencyHealthCollectRejectsAnonymousCheck(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "  ", Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	if _, err := repo.Collect(context.Background()); err == nil {
		t.Fatal("expected error for unnamed check")
	}
}
