package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDistinguishesZeroFromUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("game:\n  correct_points: 5\n  decoy_points: 0\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Game.CorrectPoints == nil || *cfg.Game.CorrectPoints != 5 {
		t.Fatalf("expected correct_points 5, got %+v", cfg.Game.CorrectPoints)
	}
	if cfg.Game.DecoyPoints == nil || *cfg.Game.DecoyPoints != 0 {
		t.Fatalf("an explicit zero must survive loading, got %+v", cfg.Game.DecoyPoints)
	}
	if cfg.Game.SelfVotePenalty != nil {
		t.Fatalf("a field left out must stay nil, got %d", *cfg.Game.SelfVotePenalty)
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("empty ttl must fall back, got %s", d)
	}
	if d := TTLDuration("30s", time.Minute); d != 30*time.Second {
		t.Fatalf("expected 30s, got %s", d)
	}
	if d := TTLDuration("bogus", time.Minute); d != time.Minute {
		t.Fatalf("unparsable ttl must fall back, got %s", d)
	}
}
