package config

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestHolder_GetAndReload(t *testing.T) {
	path := writeConfig(t, "limits:\n  daily_units: 1000\n")

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	if got := h.Get().Limits.DailyUnits; got != 1000 {
		t.Fatalf("expected daily units 1000, got %d", got)
	}

	if err := os.WriteFile(path, []byte("limits:\n  daily_units: 2000\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := h.Get().Limits.DailyUnits; got != 2000 {
		t.Errorf("expected daily units 2000 after reload, got %d", got)
	}
}

func TestHolder_ReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, "limits:\n  daily_units: 1000\n")

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	if err := os.WriteFile(path, []byte("storage:\n  driver: redis\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("expected reload error for invalid config")
	}
	if got := h.Get().Limits.DailyUnits; got != 1000 {
		t.Errorf("expected old config kept after failed reload, got daily units %d", got)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, "limits:\n  daily_units: 1000\n")

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	var seen int64
	h.OnChange(func(cfg *Config) { seen = cfg.Limits.DailyUnits })

	if err := os.WriteFile(path, []byte("limits:\n  daily_units: 3000\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if seen != 3000 {
		t.Errorf("expected listener to see 3000, got %d", seen)
	}
}

func TestHolder_NewHolderRejectsMissingFile(t *testing.T) {
	if _, err := NewHolder("/does/not/exist.yaml", zerolog.Nop()); err == nil {
		t.Error("expected error for missing config file")
	}
}
