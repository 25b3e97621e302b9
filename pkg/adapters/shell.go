package adapters

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHShellAdapter dispatches remote-shell steps over golang.org/x/crypto/ssh,
// wrapped in a per-host circuit breaker.
type SSHShellAdapter struct {
	breakers *BreakerRegistry
	dialFunc func(network, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error)
}

// NewSSHShellAdapter constructs a ShellAdapter backed by real SSH dials.
func NewSSHShellAdapter() *SSHShellAdapter {
	return &SSHShellAdapter{breakers: NewBreakerRegistry(), dialFunc: ssh.Dial}
}

// Execute runs input.Command in a single SSH session. The session is killed
// when ctx is cancelled or the input timeout elapses, whichever is first.
func (a *SSHShellAdapter) Execute(ctx context.Context, input ShellInput) (*Result, error) {
	return Run(a.breakers, input.Host, func() (*Result, error) {
		return a.dispatch(ctx, input)
	})
}

func (a *SSHShellAdapter) dispatch(ctx context.Context, input ShellInput) (*Result, error) {
	auth, err := shellAuthMethods(input)
	if err != nil {
		return nil, err
	}

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            input.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // asset inventory is the trust boundary, not host key pinning
		Timeout:         timeout,
	}

	port := input.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(input.Host, strconv.Itoa(port))

	client, err := a.dialFunc("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(input.Command) }()

	select {
	case <-runCtx.Done():
		session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("ssh command on %s: %w", input.Host, runCtx.Err())
	case runErr := <-done:
		code := 0
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			code = exitErr.ExitStatus()
			runErr = nil
		}
		res := &Result{
			ExitCode: &code,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: time.Since(started),
		}
		if runErr != nil {
			return res, fmt.Errorf("ssh command on %s: %w", input.Host, runErr)
		}
		return res, nil
	}
}

func shellAuthMethods(input ShellInput) ([]ssh.AuthMethod, error) {
	if input.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(input.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if input.Password != "" {
		return []ssh.AuthMethod{ssh.Password(input.Password)}, nil
	}
	return nil, fmt.Errorf("shell adapter: no credential supplied for %s@%s", input.User, input.Host)
}
