package models

import "testing"

func TestValidTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPendingApproval, StatusApproved},
		{StatusPendingApproval, StatusCancelled},
		{StatusApproved, StatusQueued},
		{StatusApproved, StatusRunning},
		{StatusQueued, StatusRunning},
		{StatusQueued, StatusFailed},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusPartial},
		{StatusRunning, StatusTimedOut},
		{StatusRunning, StatusQueued}, // queue-level retry re-dispatch
	}
	for _, tc := range allowed {
		if !ValidTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusCompleted, StatusRunning},
		{StatusFailed, StatusQueued},
		{StatusCancelled, StatusApproved},
		{StatusTimedOut, StatusRunning},
		{StatusPendingApproval, StatusRunning},
		{StatusQueued, StatusCompleted},
	}
	for _, tc := range denied {
		if ValidTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingTransitions(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusPartial, StatusFailed, StatusCancelled, StatusTimedOut} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
		for _, to := range []Status{StatusPendingApproval, StatusApproved, StatusQueued, StatusRunning, StatusCompleted} {
			if ValidTransition(s, to) {
				t.Errorf("terminal status %s must not transition to %s", s, to)
			}
		}
	}
}

func TestInitialStatus(t *testing.T) {
	if got := InitialStatus(0); got != StatusApproved {
		t.Errorf("approval level 0 should start approved, got %s", got)
	}
	if got := InitialStatus(2); got != StatusPendingApproval {
		t.Errorf("approval level 2 should start pending-approval, got %s", got)
	}
}

func TestSLAClassMaxAttempts(t *testing.T) {
	cases := map[SLAClass]int{SLAFast: 2, SLAMedium: 3, SLALong: 5, SLAClass("unknown"): 3}
	for class, want := range cases {
		if got := class.MaxAttempts(); got != want {
			t.Errorf("%s: expected %d attempts, got %d", class, want, got)
		}
	}
}

func TestIsSecretRef(t *testing.T) {
	ref, ok := IsSecretRef(map[string]any{"kind": "secret", "path": "db/prod"})
	if !ok || ref.Path != "db/prod" {
		t.Fatalf("expected a secret ref, got ok=%v ref=%+v", ok, ref)
	}
	if _, ok := IsSecretRef(map[string]any{"kind": "plain", "path": "db/prod"}); ok {
		t.Fatal("a non-secret kind must not be treated as a reference")
	}
	if _, ok := IsSecretRef("just a string"); ok {
		t.Fatal("a scalar must not be treated as a reference")
	}
}
