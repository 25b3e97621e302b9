package adapters

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/masterzen/winrm"
)

// WinRMPowerShellAdapter dispatches remote-powershell steps over
// github.com/masterzen/winrm, wrapped in a per-host circuit breaker.
type WinRMPowerShellAdapter struct {
	breakers *BreakerRegistry
}

// NewWinRMPowerShellAdapter constructs a PowerShellAdapter backed by real
// WinRM connections.
func NewWinRMPowerShellAdapter() *WinRMPowerShellAdapter {
	return &WinRMPowerShellAdapter{breakers: NewBreakerRegistry()}
}

// Execute runs input.Script over a WinRM shell. The run is abandoned, not
// killed server-side, when ctx is cancelled or the input timeout elapses —
// WinRM has no remote-signal equivalent to SSH's SIGKILL.
func (a *WinRMPowerShellAdapter) Execute(ctx context.Context, input PowerShellInput) (*Result, error) {
	return Run(a.breakers, input.Host, func() (*Result, error) {
		return a.dispatch(ctx, input)
	})
}

func (a *WinRMPowerShellAdapter) dispatch(ctx context.Context, input PowerShellInput) (*Result, error) {
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	port := input.Port
	if port == 0 {
		port = 5985
		if input.HTTPS {
			port = 5986
		}
	}

	endpoint := winrm.NewEndpoint(input.Host, port, input.HTTPS, input.Insecure, nil, nil, nil, timeout)
	client, err := winrm.NewClient(endpoint, input.User, input.Password)
	if err != nil {
		return nil, fmt.Errorf("winrm client for %s: %w", input.Host, err)
	}

	var stdout, stderr bytes.Buffer
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	type runResult struct {
		code int
		err  error
	}
	done := make(chan runResult, 1)
	go func() {
		code, err := client.Run(input.Script, &stdout, &stderr)
		done <- runResult{code: code, err: err}
	}()

	select {
	case <-runCtx.Done():
		return nil, fmt.Errorf("winrm script on %s: %w", input.Host, runCtx.Err())
	case r := <-done:
		res := &Result{
			ExitCode: &r.code,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: time.Since(started),
		}
		if r.err != nil {
			return res, fmt.Errorf("winrm script on %s: %w", input.Host, r.err)
		}
		return res, nil
	}
}
