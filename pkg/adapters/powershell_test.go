package adapters

import (
	"context"
	"testing"
	"time"
)

func TestWinRMPowerShellAdapter_CancelledContextAbandonsRun(t *testing.T) {
	a := NewWinRMPowerShellAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Execute(ctx, PowerShellInput{
		Host: "127.0.0.1", Port: 59859,
		User: "admin", Password: "x",
		Script: "hostname", Timeout: time.Second,
	})
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

func TestWinRMPowerShellAdapter_BreakerIsolatesPerHost(t *testing.T) {
	a := NewWinRMPowerShellAdapter()
	if a.breakers.For("host-a") == a.breakers.For("host-b") {
		t.Fatal("expected distinct breakers per target host")
	}
	if a.breakers.For("host-a") != a.breakers.For("host-a") {
		t.Fatal("expected the same breaker on repeat lookups of one host")
	}
}
