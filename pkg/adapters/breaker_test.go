package adapters

import (
	"errors"
	"testing"
)

func TestBreakerRegistry_SameHostReusesBreaker(t *testing.T) {
	r := NewBreakerRegistry()
	if r.For("host-a") != r.For("host-a") {
		t.Fatal("expected the same breaker instance for repeated lookups of the same host")
	}
	if r.For("host-a") == r.For("host-b") {
		t.Fatal("expected distinct breakers for distinct hosts")
	}
}

func TestRun_PropagatesFunctionError(t *testing.T) {
	r := NewBreakerRegistry()
	boom := errors.New("target unreachable")
	_, err := Run(r, "host-a", func() (*Result, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected the underlying error to propagate, got %v", err)
	}
}

func TestRun_PropagatesResultOnSuccess(t *testing.T) {
	r := NewBreakerRegistry()
	code := 0
	res, err := Run(r, "host-a", func() (*Result, error) { return &Result{ExitCode: &code}, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatal("expected result to pass through unchanged")
	}
}
