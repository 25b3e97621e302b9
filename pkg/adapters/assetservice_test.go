package adapters

import (
	"context"
	"testing"
)

func TestInMemoryAssetService_ResolveAndQuery(t *testing.T) {
	svc := NewInMemoryAssetService()
	svc.Put(Asset{ID: "a1", Hostname: "web-01", OS: "linux"})
	svc.Put(Asset{ID: "a2", Hostname: "win-01", OS: "windows"})

	asset, err := svc.Resolve(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.Hostname != "web-01" {
		t.Fatalf("expected web-01, got %s", asset.Hostname)
	}

	linux, err := svc.Query(context.Background(), map[string]any{"os": "linux"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(linux) != 1 || linux[0].ID != "a1" {
		t.Fatalf("expected exactly asset a1, got %+v", linux)
	}
}

func TestInMemoryAssetService_ResolveMissingIsAnError(t *testing.T) {
	svc := NewInMemoryAssetService()
	if _, err := svc.Resolve(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for an unregistered asset")
	}
}
