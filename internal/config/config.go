package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quiz-match-service/internal/domain"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subjectPrefix"`
	} `yaml:"nats"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Match MatchSection `yaml:"match"`
}

type MatchSection struct {
	Kind                   string `yaml:"kind"`
	BasePoints             int    `yaml:"basePoints"`
	TimeBonusMax           int    `yaml:"timeBonusMax"`
	GracePeriod            string `yaml:"gracePeriod"`
	CloseWhenAllAnswered   bool   `yaml:"closeWhenAllAnswered"`
	TerminateWhenAbandoned bool   `yaml:"terminateWhenAbandoned"`
	PersistTimeout         string `yaml:"persistTimeout"`
}

// Load reads YAML config from path and fills defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Match.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (m MatchSection) validate() error {
	if m.BasePoints < 0 || m.BasePoints > domain.MaxPoints {
		return fmt.Errorf("%w: basePoints must be within [0, %d]", domain.ErrInvalidConfiguration, domain.MaxPoints)
	}
	if m.TimeBonusMax < 0 || m.TimeBonusMax > domain.MaxPoints {
		return fmt.Errorf("%w: timeBonusMax must be within [0, %d]", domain.ErrInvalidConfiguration, domain.MaxPoints)
	}
	if m.GracePeriod != "" {
		grace, err := time.ParseDuration(m.GracePeriod)
		if err != nil {
			return fmt.Errorf("%w: gracePeriod: %v", domain.ErrInvalidConfiguration, err)
		}
		if grace < 0 || grace > domain.MaxGracePeriod {
			return fmt.Errorf("%w: gracePeriod must be within [0, %s]", domain.ErrInvalidConfiguration, domain.MaxGracePeriod)
		}
	}
	return nil
}

// Default is the configuration used for keys a file leaves out.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Redis.TTL = "2h"
	cfg.NATS.SubjectPrefix = "match.events"
	cfg.Auth.TokenTTL = "1h"
	cfg.Questions.TTL = "10m"
	cfg.Match = MatchSection{
		Kind:           "casual",
		BasePoints:     100,
		TimeBonusMax:   50,
		GracePeriod:    "1s",
		PersistTimeout: "5s",
	}
	return cfg
}

// MatchConfig converts the match section into per-match settings.
func (c Config) MatchConfig() domain.MatchConfig {
	return domain.MatchConfig{
		Kind: c.Match.Kind,
		Scoring: domain.ScoringConfig{
			BasePoints:   c.Match.BasePoints,
			TimeBonusMax: c.Match.TimeBonusMax,
		},
		GracePeriod:          TTLDuration(c.Match.GracePeriod, time.Second),
		CloseWhenAllAnswered: c.Match.CloseWhenAllAnswered,
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
