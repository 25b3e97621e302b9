package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	values map[string]string
	reads  []string
}

func (f *fakeClient) Read(_ context.Context, path string) (string, error) {
	f.reads = append(f.reads, path)
	v, ok := f.values[path]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

type recordingEvents struct {
	accessed []string
	failed   []string
}

func (r *recordingEvents) RecordSecretAccessed(_ context.Context, _, _, path string) {
	r.accessed = append(r.accessed, path)
}

func (r *recordingEvents) RecordSecretResolutionFailed(_ context.Context, _, _, path string, _ error) {
	r.failed = append(r.failed, path)
}

func TestResolver_SubstitutesNestedReferences(t *testing.T) {
	client := &fakeClient{values: map[string]string{"db/prod": "hunter2", "api/token": "tok-123"}}
	events := &recordingEvents{}
	r := NewResolver(client, events)

	input := map[string]any{
		"host":     "db-01",
		"password": map[string]any{"kind": "secret", "path": "db/prod"},
		"headers": []any{
			map[string]any{"kind": "secret", "path": "api/token"},
			"plain-value",
		},
	}

	resolved, err := r.Resolve(context.Background(), "tenant-a", "exec-1", input)
	require.NoError(t, err)

	m := resolved.(map[string]any)
	assert.Equal(t, "hunter2", m["password"])
	assert.Equal(t, "db-01", m["host"])
	list := m["headers"].([]any)
	assert.Equal(t, "tok-123", list[0])
	assert.Equal(t, "plain-value", list[1])

	assert.ElementsMatch(t, []string{"db/prod", "api/token"}, events.accessed)
	assert.Empty(t, events.failed)
}

func TestResolver_DoesNotMutateTheOriginalInput(t *testing.T) {
	client := &fakeClient{values: map[string]string{"db/prod": "hunter2"}}
	r := NewResolver(client, nil)

	input := map[string]any{
		"password": map[string]any{"kind": "secret", "path": "db/prod"},
	}

	_, err := r.Resolve(context.Background(), "tenant-a", "exec-1", input)
	require.NoError(t, err)

	ref := input["password"].(map[string]any)
	assert.Equal(t, "secret", ref["kind"], "the caller's plan input must keep the unresolved marker")
}

func TestResolver_FailureRecordsPathNeverValue(t *testing.T) {
	client := &fakeClient{values: map[string]string{}}
	events := &recordingEvents{}
	r := NewResolver(client, events)

	input := map[string]any{
		"password": map[string]any{"kind": "secret", "path": "db/missing"},
	}

	_, err := r.Resolve(context.Background(), "tenant-a", "exec-1", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db/missing")
	assert.Equal(t, []string{"db/missing"}, events.failed)
	assert.Empty(t, events.accessed)
}

func TestResolver_NonSecretMapsPassThrough(t *testing.T) {
	client := &fakeClient{}
	r := NewResolver(client, nil)

	input := map[string]any{
		"config": map[string]any{"kind": "plain", "path": "/etc/app"},
		"count":  float64(3),
	}

	resolved, err := r.Resolve(context.Background(), "tenant-a", "exec-1", input)
	require.NoError(t, err)
	assert.Equal(t, input, resolved)
	assert.Empty(t, client.reads)
}
