package adapters

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StdlibHTTPAdapter dispatches http steps using net/http directly — no
// wrapper library in the pack adds meaningful behavior beyond what
// net/http.Client plus a context deadline already gives here.
type StdlibHTTPAdapter struct {
	breakers *BreakerRegistry
}

// NewStdlibHTTPAdapter constructs an HTTPAdapter.
func NewStdlibHTTPAdapter() *StdlibHTTPAdapter {
	return &StdlibHTTPAdapter{breakers: NewBreakerRegistry()}
}

// Execute issues one HTTP request and reports its status, headers, and body.
func (a *StdlibHTTPAdapter) Execute(ctx context.Context, input HTTPInput) (*Result, error) {
	host := input.URL
	if u, err := url.Parse(input.URL); err == nil && u.Host != "" {
		host = u.Host
	}
	return Run(a.breakers, host, func() (*Result, error) {
		return a.dispatch(ctx, input)
	})
}

func (a *StdlibHTTPAdapter) dispatch(ctx context.Context, input HTTPInput) (*Result, error) {
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := input.URL
	if len(input.Query) > 0 {
		u, err := url.Parse(reqURL)
		if err == nil {
			q := u.Query()
			for k, v := range input.Query {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
			reqURL = u.String()
		}
	}

	method := input.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(reqCtx, method, reqURL, strings.NewReader(input.Body))
	if err != nil {
		return nil, err
	}
	for k, v := range input.Headers {
		req.Header.Set(k, v)
	}
	if input.AuthHeader != "" {
		req.Header.Set("Authorization", input.AuthHeader)
	}

	client := &http.Client{}
	if input.InsecureTLS {
		client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       string(body),
		Duration:   time.Since(started),
	}, nil
}
