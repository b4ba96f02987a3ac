package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/firstissue/scout/config"
)

func TestNewOptions(t *testing.T) {
	o := NewOptions(
		WithSince("2w"),
		WithVerbosity(2),
		WithDryRun(true),
	)

	if o.Since != "2w" {
		t.Errorf("Since = %q, want 2w", o.Since)
	}
	if o.Verbosity != 2 {
		t.Errorf("Verbosity = %d, want 2", o.Verbosity)
	}
	if !o.DryRun {
		t.Error("DryRun should be set")
	}
}

func TestRootCommandStructure(t *testing.T) {
	root := New()

	if root.Use != "scout" {
		t.Errorf("Use = %q, want scout", root.Use)
	}

	want := map[string]bool{"run": false, "config": false, "version": false}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestOpenStoreStateFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := &config.Config{Store: &config.StoreConfig{Backend: config.StoreRedis}}

	// --state-file forces the file backend even when redis is configured.
	store, err := openStore(context.Background(), cfg, path)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Count(context.Background()); err != nil {
		t.Errorf("Count: %v", err)
	}
}

func TestOpenStoreRedisRequiresURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	cfg := &config.Config{Store: &config.StoreConfig{Backend: config.StoreRedis}}

	if _, err := openStore(context.Background(), cfg, ""); err == nil {
		t.Fatal("expected error when REDIS_URL is unset")
	}
}
