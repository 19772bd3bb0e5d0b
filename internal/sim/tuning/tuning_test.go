package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_PartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := `
claims:
  max_per_clan: 4
  cost: "250.50"
war:
  exclusivity_window: 2h
siege:
  channel_duration: 3s
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.Claims.MaxPerClan != 4 {
		t.Fatalf("max_per_clan: got %d", tu.Claims.MaxPerClan)
	}
	if tu.Claims.Cost.String() != "250.5" {
		t.Fatalf("cost: got %s", tu.Claims.Cost)
	}
	if tu.War.ExclusivityWindow.D() != 2*time.Hour {
		t.Fatalf("window: got %s", tu.War.ExclusivityWindow.D())
	}
	if tu.Siege.ChannelDuration.D() != 3*time.Second {
		t.Fatalf("channel: got %s", tu.Siege.ChannelDuration.D())
	}
	// Untouched sections keep defaults.
	if tu.Siege.Duration.D() != 20*time.Minute {
		t.Fatalf("siege duration: got %s", tu.Siege.Duration.D())
	}
	if tu.Maintenance.Scale.String() != "1.5" {
		t.Fatalf("scale: got %s", tu.Maintenance.Scale)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("claims:\n  max_per_clan: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "max_per_clan") {
		t.Fatalf("expected max_per_clan error, got %v", err)
	}

	if err := os.WriteFile(path, []byte("war:\n  exclusivity_window: soon\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestValidate_SiegeRateOrdering(t *testing.T) {
	cases := []struct {
		name                        string
		attacker, passive, defender float64
		want                        string
	}{
		{"passive outruns attacker", 1, 2, 0, "attacker_rate > passive_rate"},
		{"attacker equals passive", 1, 1, 0, "attacker_rate > passive_rate"},
		{"defender outruns passive", 2, 0.5, 1, "passive_rate >= defender_rate"},
		{"attacker too slow", 0.5, 0.25, 0, "attacker_rate must be >= 1"},
	}
	for _, tc := range cases {
		tu := Defaults()
		tu.Siege.AttackerRate, tu.Siege.PassiveRate, tu.Siege.DefenderRate = tc.attacker, tc.passive, tc.defender
		err := tu.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.want, err)
		}
	}

	tu := Defaults()
	tu.Siege.AttackerRate, tu.Siege.PassiveRate, tu.Siege.DefenderRate = 3, 1, 1
	if err := tu.Validate(); err != nil {
		t.Fatalf("3/1/1 must be valid: %v", err)
	}
}
