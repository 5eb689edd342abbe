package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobsInOrder(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "subscription-expiry"}
	jobB := &stubJob{name: "webhook-ledger-retention"}
	if err := registry.Register(jobA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register(jobB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	// callers get a copy
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("registry slice mutated by caller")
	}
	names := registry.Names()
	if len(names) != 2 || names[0] != "subscription-expiry" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "a"}, nil, &stubJob{name: "a"})
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected duplicates dropped, got %d jobs", got)
	}
	if err := registry.Register(&stubJob{name: "a"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatal("expected nil job error")
	}
}
