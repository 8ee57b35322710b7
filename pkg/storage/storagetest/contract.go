// Package storagetest runs the behaviour every settings.StorageAdapter must
// share against a concrete adapter.
package storagetest

import (
	"context"
	"testing"

	settings "github.com/goliatone/go-settings"
)

// Factory returns a fresh, empty adapter for one subtest.
type Factory func(t *testing.T) settings.StorageAdapter

// Run executes the adapter contract against adapters produced by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	t.Helper()

	t.Run("missing data loads empty", func(t *testing.T) {
		adapter := newAdapter(t)
		got, err := adapter.Load(context.Background(), Target("mailer", "", nil))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if got.Len() != 0 {
			t.Fatalf("expected empty map, got %v", got)
		}
	})

	t.Run("save then load round trips in order", func(t *testing.T) {
		adapter := newAdapter(t)
		target := Target("mailer", "", nil)
		want := Sample(t)
		if err := adapter.Save(context.Background(), target, want); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
		got, err := adapter.Load(context.Background(), target)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if !got.Equal(want) {
			t.Fatalf("round trip mismatch\nwant: %v\n got: %v", want, got)
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		adapter := newAdapter(t)
		target := Target("mailer", "", nil)
		if err := adapter.Save(context.Background(), target, Sample(t)); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
		next := settings.NewNormalizedMap()
		mustSet(t, next, "host", "mail.internal")
		if err := adapter.Save(context.Background(), target, next); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
		got, err := adapter.Load(context.Background(), target)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if !got.Equal(next) {
			t.Fatalf("expected overwrite, got %v", got)
		}
	})

	t.Run("instance keys and scopes are isolated", func(t *testing.T) {
		adapter := newAdapter(t)
		targets := []settings.Target{
			Target("feed", "", nil),
			Target("feed", "news", nil),
			Target("feed", "", map[string]any{"scope": "tenant", "tenant_id": "a"}),
			Target("feed", "", map[string]any{"scope": "tenant", "tenant_id": "b"}),
		}
		for i, target := range targets {
			data := settings.NewNormalizedMap()
			mustSet(t, data, "index", i)
			if err := adapter.Save(context.Background(), target, data); err != nil {
				t.Fatalf("Save %d returned error: %v", i, err)
			}
		}
		for i, target := range targets {
			got, err := adapter.Load(context.Background(), target)
			if err != nil {
				t.Fatalf("Load %d returned error: %v", i, err)
			}
			if value, _ := got.Get("index"); value != int64(i) {
				t.Fatalf("target %d: expected index %d, got %v", i, i, value)
			}
		}
	})

	t.Run("stored data is detached from the caller", func(t *testing.T) {
		adapter := newAdapter(t)
		target := Target("mailer", "", nil)
		data := Sample(t)
		if err := adapter.Save(context.Background(), target, data); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
		mustSet(t, data, "host", "mutated")
		got, err := adapter.Load(context.Background(), target)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		mustSet(t, got, "port", 1)
		again, err := adapter.Load(context.Background(), target)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if !again.Equal(Sample(t)) {
			t.Fatalf("expected stored data to stay detached, got %v", again)
		}
	})

	t.Run("invalid target is rejected", func(t *testing.T) {
		adapter := newAdapter(t)
		target := Target("mailer", "", map[string]any{"scope": "user"})
		if _, err := adapter.Load(context.Background(), target); err == nil {
			t.Fatalf("expected Load to reject a user scope without user_id")
		}
		if err := adapter.Save(context.Background(), target, Sample(t)); err == nil {
			t.Fatalf("expected Save to reject a user scope without user_id")
		}
	})
}

// Target builds a target for short name.
func Target(short, instanceKey string, options map[string]any) settings.Target {
	return settings.Target{
		Identity:    "app." + short,
		ShortName:   short,
		InstanceKey: instanceKey,
		Options:     options,
	}
}

// Sample returns a map that exercises every normalized kind.
func Sample(t *testing.T) *settings.NormalizedMap {
	t.Helper()
	m := settings.NewNormalizedMap()
	mustSet(t, m, "host", "localhost")
	mustSet(t, m, "port", 25)
	mustSet(t, m, "ratio", 0.75)
	mustSet(t, m, "tls", true)
	mustSet(t, m, "reply_to", nil)
	mustSet(t, m, "tags", []any{"ops", "1"})
	m.WithVersion(2)
	return m
}

func mustSet(t *testing.T, m *settings.NormalizedMap, key string, value any) {
	t.Helper()
	if err := m.Set(key, value); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}
