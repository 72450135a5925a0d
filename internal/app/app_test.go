package app

import (
	"context"
	"testing"

	"github.com/cratos-ai/orchestrator/internal/sessionstore"
)

func TestOpenSessionStoreRejectsInProcessInProduction(t *testing.T) {
	sessionstore.AllowInProcessInProduction = false
	_, _, err := openSessionStore(context.Background(), "production", StorageConfig{})
	if err == nil {
		t.Fatal("expected error falling back to in-process session store in production")
	}
}

func TestOpenSessionStoreAllowsInProcessInProductionWhenOverridden(t *testing.T) {
	sessionstore.AllowInProcessInProduction = true
	defer func() { sessionstore.AllowInProcessInProduction = false }()

	store, closer, err := openSessionStore(context.Background(), "production", StorageConfig{})
	if err != nil {
		t.Fatalf("openSessionStore: %v", err)
	}
	if store == nil {
		t.Fatal("expected a store")
	}
	if closer != nil {
		t.Fatal("expected no closer for the in-process store")
	}
}

func TestOpenSessionStoreAllowsInProcessOutsideProduction(t *testing.T) {
	sessionstore.AllowInProcessInProduction = false
	_, _, err := openSessionStore(context.Background(), "development", StorageConfig{})
	if err != nil {
		t.Fatalf("openSessionStore: %v", err)
	}
}
