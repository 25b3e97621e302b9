package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// OSLocalCommandAdapter dispatches local-command steps on the worker's own
// host using os/exec, context-aware.
type OSLocalCommandAdapter struct {
	breakers *BreakerRegistry
}

// NewOSLocalCommandAdapter constructs a LocalCommandAdapter.
func NewOSLocalCommandAdapter() *OSLocalCommandAdapter {
	return &OSLocalCommandAdapter{breakers: NewBreakerRegistry()}
}

// Execute runs input.Command with input.Args on the local host. The process
// group is killed when ctx is cancelled or the input timeout elapses.
func (a *OSLocalCommandAdapter) Execute(ctx context.Context, input LocalCommandInput) (*Result, error) {
	return Run(a.breakers, "localhost", func() (*Result, error) {
		return a.dispatch(ctx, input)
	})
}

func (a *OSLocalCommandAdapter) dispatch(ctx context.Context, input LocalCommandInput) (*Result, error) {
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, input.Command, input.Args...)
	cmd.Dir = input.Dir
	if len(input.Env) > 0 {
		env := cmd.Environ()
		for k, v := range input.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	res := &Result{
		ExitCode: &code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	if runCtx.Err() != nil {
		return res, fmt.Errorf("local command %q: %w", input.Command, runCtx.Err())
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); ok {
			return res, nil // non-zero exit is a result, not an adapter error
		}
		return res, fmt.Errorf("local command %q: %w", input.Command, runErr)
	}
	return res, nil
}
