// Package secrets resolves {"kind":"secret","path":"..."} references embedded
// in a plan or step input into their live values, without ever letting the
// value itself cross into a log line or event payload.
package secrets

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// Client fetches a secret value by path. Satisfied by *VaultClient; narrowed
// to an interface so the resolver can be tested without a live Vault.
type Client interface {
	Read(ctx context.Context, path string) (string, error)
}

// EventRecorder emits the audit trail for secret access, kept narrow so
// Resolver doesn't need the whole pkg/events surface.
type EventRecorder interface {
	RecordSecretAccessed(ctx context.Context, tenantID, executionID, path string)
	RecordSecretResolutionFailed(ctx context.Context, tenantID, executionID, path string, err error)
}

// Resolver walks plan/step input recursively, replacing every node shaped
// like a models.SecretRef with the value Client.Read returns for its path.
// The walk operates over map[string]any/[]any rather than struct-field
// reflection, since plan input is untyped JSON.
type Resolver struct {
	client Client
	events EventRecorder
}

// NewResolver constructs a Resolver.
func NewResolver(client Client, events EventRecorder) *Resolver {
	return &Resolver{client: client, events: events}
}

// Resolve returns a copy of input with every secret reference replaced by
// its resolved value. tenantID scopes the audit events; executionID
// identifies which execution triggered the lookup.
func (r *Resolver) Resolve(ctx context.Context, tenantID, executionID string, input any) (any, error) {
	return r.walk(ctx, tenantID, executionID, input)
}

func (r *Resolver) walk(ctx context.Context, tenantID, executionID string, node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := models.IsSecretRef(v); ok {
			return r.resolveRef(ctx, tenantID, executionID, ref)
		}
		resolved := make(map[string]any, len(v))
		for key, val := range v {
			rv, err := r.walk(ctx, tenantID, executionID, val)
			if err != nil {
				return nil, err
			}
			resolved[key] = rv
		}
		return resolved, nil

	case []any:
		resolved := make([]any, len(v))
		for i, val := range v {
			rv, err := r.walk(ctx, tenantID, executionID, val)
			if err != nil {
				return nil, err
			}
			resolved[i] = rv
		}
		return resolved, nil

	default:
		return node, nil
	}
}

func (r *Resolver) resolveRef(ctx context.Context, tenantID, executionID string, ref models.SecretRef) (any, error) {
	value, err := r.client.Read(ctx, ref.Path)
	if err != nil {
		if r.events != nil {
			r.events.RecordSecretResolutionFailed(ctx, tenantID, executionID, ref.Path, err)
		}
		return nil, fmt.Errorf("resolving secret %q: %w", ref.Path, err)
	}
	if r.events != nil {
		r.events.RecordSecretAccessed(ctx, tenantID, executionID, ref.Path)
	}
	return value, nil
}
