package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Claims      Claims      `yaml:"claims"`
	Maintenance Maintenance `yaml:"maintenance"`
	War         War         `yaml:"war"`
	Siege       Siege       `yaml:"siege"`
	RateLimits  RateLimits  `yaml:"rate_limits"`
}

type Claims struct {
	MaxPerClan int             `yaml:"max_per_clan"`
	Cost       decimal.Decimal `yaml:"cost"`
}

type Maintenance struct {
	Base     decimal.Decimal `yaml:"base"`
	Scale    decimal.Decimal `yaml:"scale"`
	Interval Duration        `yaml:"interval"`
}

type War struct {
	DeclarationCost   decimal.Decimal `yaml:"declaration_cost"`
	ExclusivityWindow Duration        `yaml:"exclusivity_window"`
	SweepInterval     Duration        `yaml:"sweep_interval"`
	VictoryWindow     Duration        `yaml:"victory_window"`
}

type Siege struct {
	Duration        Duration `yaml:"duration"`
	ContestRadius   int      `yaml:"contest_radius"`
	AttackerRate    float64  `yaml:"attacker_rate"`
	PassiveRate     float64  `yaml:"passive_rate"`
	DefenderRate    float64  `yaml:"defender_rate"`
	TickInterval    Duration `yaml:"tick_interval"`
	ChannelDuration Duration `yaml:"channel_duration"`
	CheckpointEvery Duration `yaml:"checkpoint_every"`
}

type RateLimits struct {
	CommandsPerSecond float64 `yaml:"commands_per_second"`
	Burst             int     `yaml:"burst"`
}

// Duration is a time.Duration read from a Go duration string ("24h", "5s").
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Claims: Claims{
			MaxPerClan: 16,
			Cost:       decimal.Zero,
		},
		Maintenance: Maintenance{
			Base:     decimal.NewFromInt(100),
			Scale:    decimal.RequireFromString("1.5"),
			Interval: Duration(24 * time.Hour),
		},
		War: War{
			DeclarationCost:   decimal.NewFromInt(5000),
			ExclusivityWindow: Duration(24 * time.Hour),
			SweepInterval:     Duration(30 * time.Second),
			VictoryWindow:     Duration(24 * time.Hour),
		},
		Siege: Siege{
			Duration:        Duration(20 * time.Minute),
			ContestRadius:   16,
			AttackerRate:    2.0,
			PassiveRate:     1.0,
			DefenderRate:    0.0,
			TickInterval:    Duration(time.Second),
			ChannelDuration: Duration(5 * time.Second),
			CheckpointEvery: Duration(10 * time.Second),
		},
		RateLimits: RateLimits{
			CommandsPerSecond: 10,
			Burst:             20,
		},
	}
}

// Load reads a tuning file over Defaults, so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.Claims.MaxPerClan <= 0 {
		errs = append(errs, errors.New("claims.max_per_clan must be > 0"))
	}
	if t.Claims.Cost.IsNegative() {
		errs = append(errs, errors.New("claims.cost must be >= 0"))
	}
	if t.Maintenance.Base.IsNegative() || t.Maintenance.Scale.IsNegative() {
		errs = append(errs, errors.New("maintenance.base and maintenance.scale must be >= 0"))
	}
	if t.Maintenance.Interval <= 0 {
		errs = append(errs, errors.New("maintenance.interval must be > 0"))
	}
	if t.War.DeclarationCost.IsNegative() {
		errs = append(errs, errors.New("war.declaration_cost must be >= 0"))
	}
	if t.War.ExclusivityWindow <= 0 || t.War.SweepInterval <= 0 {
		errs = append(errs, errors.New("war.exclusivity_window and war.sweep_interval must be > 0"))
	}
	if t.Siege.Duration <= 0 || t.Siege.TickInterval <= 0 {
		errs = append(errs, errors.New("siege.duration and siege.tick_interval must be > 0"))
	}
	if t.Siege.ContestRadius < 0 {
		errs = append(errs, errors.New("siege.contest_radius must be >= 0"))
	}
	if t.Siege.AttackerRate < 0 || t.Siege.PassiveRate < 0 || t.Siege.DefenderRate < 0 {
		errs = append(errs, errors.New("siege rates must be >= 0"))
	}
	if !(t.Siege.AttackerRate > t.Siege.PassiveRate && t.Siege.PassiveRate >= t.Siege.DefenderRate) {
		errs = append(errs, errors.New("siege rates must satisfy attacker_rate > passive_rate >= defender_rate"))
	}
	if t.Siege.AttackerRate < 1 {
		errs = append(errs, errors.New("siege.attacker_rate must be >= 1"))
	}
	if t.RateLimits.CommandsPerSecond <= 0 || t.RateLimits.Burst <= 0 {
		errs = append(errs, errors.New("rate_limits must be > 0"))
	}
	return errors.Join(errs...)
}
