package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/partykit/rounds-backend/internal/chairs"
	"github.com/partykit/rounds-backend/internal/deathdate"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chairs    ChairsConfig    `yaml:"chairs"`
	DeathDate DeathDateConfig `yaml:"death_date"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr"`
	PollMillis int    `yaml:"poll_millis"`
}

type ChairsConfig struct {
	MinPlayers        int     `yaml:"min_players"`
	PrepSec           float64 `yaml:"prep_sec"`
	RoundSec          float64 `yaml:"round_sec"`
	IntermissionSec   float64 `yaml:"intermission_sec"`
	HeartbeatHz       int     `yaml:"heartbeat_hz"`
	TrapRatio         float64 `yaml:"trap_ratio"`
	TrapVanishSec     float64 `yaml:"trap_vanish_sec"`
	HazardIntervalSec float64 `yaml:"hazard_interval_sec"`
	PushCooldownSec   float64 `yaml:"push_cooldown_sec"`
	PushPenaltySec    float64 `yaml:"push_penalty_sec"`
	PushRadius        float64 `yaml:"push_radius"`
	PushForce         float64 `yaml:"push_force"`
	PushUpward        float64 `yaml:"push_upward"`
	ArenaRadius       float64 `yaml:"arena_radius"`
	SeatRingRadius    float64 `yaml:"seat_ring_radius"`
}

type DeathDateConfig struct {
	MinSec float64 `yaml:"min_sec"`
	MaxSec float64 `yaml:"max_sec"`
}

func Default() Config {
	ch := chairs.DefaultConfig()
	dd := deathdate.DefaultConfig()
	return Config{
		Server: ServerConfig{Addr: ":8080", PollMillis: 250},
		Chairs: ChairsConfig{
			MinPlayers:        ch.MinPlayers,
			PrepSec:           ch.Prep.Seconds(),
			RoundSec:          ch.RoundLength.Seconds(),
			IntermissionSec:   ch.Intermission.Seconds(),
			HeartbeatHz:       ch.HeartbeatHz,
			TrapRatio:         ch.TrapRatio,
			TrapVanishSec:     ch.TrapVanish.Seconds(),
			HazardIntervalSec: ch.HazardEvery.Seconds(),
			PushCooldownSec:   ch.Push.Cooldown.Seconds(),
			PushPenaltySec:    ch.Push.Penalty.Seconds(),
			PushRadius:        ch.Push.Radius,
			PushForce:         ch.Push.Force,
			PushUpward:        ch.Push.Upward,
			ArenaRadius:       ch.ArenaRadius,
			SeatRingRadius:    ch.SeatRing,
		},
		DeathDate: DeathDateConfig{
			MinSec: dd.MinDuration.Seconds(),
			MaxSec: dd.MaxDuration.Seconds(),
		},
	}
}

// Load reads a YAML file over the defaults. An empty path just returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv folds environment overrides in after file loading.
func (c *Config) ApplyEnv() {
	if addr := os.Getenv("ADDR"); addr != "" {
		c.Server.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
}

func (s ServerConfig) PollInterval() time.Duration {
	if s.PollMillis <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(s.PollMillis) * time.Millisecond
}

func (c ChairsConfig) Rules() chairs.Config {
	return chairs.Config{
		MinPlayers:   c.MinPlayers,
		Prep:         secs(c.PrepSec),
		RoundLength:  secs(c.RoundSec),
		Intermission: secs(c.IntermissionSec),
		HeartbeatHz:  c.HeartbeatHz,
		TrapRatio:    c.TrapRatio,
		TrapVanish:   secs(c.TrapVanishSec),
		HazardEvery:  secs(c.HazardIntervalSec),
		Push: chairs.PushConfig{
			Cooldown: secs(c.PushCooldownSec),
			Penalty:  secs(c.PushPenaltySec),
			Radius:   c.PushRadius,
			Force:    c.PushForce,
			Upward:   c.PushUpward,
		},
		ArenaRadius: c.ArenaRadius,
		SeatRing:    c.SeatRingRadius,
	}
}

func (d DeathDateConfig) Rules() deathdate.Config {
	cfg := deathdate.DefaultConfig()
	cfg.MinDuration = secs(d.MinSec)
	cfg.MaxDuration = secs(d.MaxSec)
	return cfg
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
