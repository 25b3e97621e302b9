package cancellation

import (
	"testing"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

func TestToken_CancelSetsReasonAndClosesDone(t *testing.T) {
	tok := NewToken()
	if tok.IsCancelled() {
		t.Fatal("expected new token to not be cancelled")
	}

	tok.Cancel(models.ReasonTimeout, "deadline exceeded")

	if !tok.IsCancelled() {
		t.Fatal("expected token to be cancelled")
	}
	if tok.Reason() != models.ReasonTimeout {
		t.Fatalf("expected reason timeout, got %s", tok.Reason())
	}
	select {
	case <-tok.Done():
	default:
		t.Fatal("expected done channel to be closed")
	}
}

func TestToken_FirstCancelWins(t *testing.T) {
	tok := NewToken()
	tok.Cancel(models.ReasonTimeout, "first")
	tok.Cancel(models.ReasonUserInitiated, "second")

	if tok.Reason() != models.ReasonTimeout || tok.Message() != "first" {
		t.Fatalf("expected first cancel to win, got reason=%s message=%s", tok.Reason(), tok.Message())
	}
}

func TestToken_OnCancel_FiresOnce(t *testing.T) {
	tok := NewToken()
	calls := 0
	tok.OnCancel(func(models.CancellationReason, string) { calls++ })
	tok.Cancel(models.ReasonError, "boom")
	tok.Cancel(models.ReasonError, "boom again")

	if calls != 1 {
		t.Fatalf("expected callback to fire exactly once, got %d", calls)
	}
}

func TestToken_OnCancel_FiresImmediatelyIfAlreadyCancelled(t *testing.T) {
	tok := NewToken()
	tok.Cancel(models.ReasonSystemShutdown, "")

	fired := false
	tok.OnCancel(func(models.CancellationReason, string) { fired = true })
	if !fired {
		t.Fatal("expected callback registered after cancel to fire immediately")
	}
}

func TestToken_OnCancel_PanicIsRecovered(t *testing.T) {
	tok := NewToken()
	tok.OnCancel(func(models.CancellationReason, string) { panic("boom") })
	tok.Cancel(models.ReasonError, "")
	// Reaching here without the test process crashing is the assertion.
}
