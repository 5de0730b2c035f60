package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server Server `yaml:"server"`
	Auth   Auth   `yaml:"auth"`
	Risk   Risk   `yaml:"risk"`
	Queue  Queue  `yaml:"queue"`
	DB     DB     `yaml:"database"`
	Redis  Redis  `yaml:"redis"`
}

type Server struct {
	Port           string   `yaml:"port"`
	Env            string   `yaml:"env"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Auth struct {
	JWTSecret           string `yaml:"jwt_secret"`
	AccessExpireMinutes int    `yaml:"access_expire_minutes"`
	RefreshExpireDays   int    `yaml:"refresh_expire_days"`
}

// AccessTTL is the lifetime of issued access tokens.
func (a Auth) AccessTTL() time.Duration {
	return time.Duration(a.AccessExpireMinutes) * time.Minute
}

// RefreshTTL is the lifetime of issued refresh tokens.
func (a Auth) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshExpireDays) * 24 * time.Hour
}

type Risk struct {
	BehaviorWeight    float64 `yaml:"behavior_weight"`
	SensitivityWeight float64 `yaml:"sensitivity_weight"`
	IntegrityWeight   float64 `yaml:"integrity_weight"`
	Contamination     float64 `yaml:"contamination"`
}

type Queue struct {
	Capacity        int     `yaml:"capacity"`
	NearCapacityPct float64 `yaml:"near_capacity_pct"`
	Workers         int     `yaml:"workers"`
}

type DB struct {
	URL string `yaml:"url"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:           "8000",
			Env:            "development",
			AllowedOrigins: []string{"*"},
		},
		Auth: Auth{
			AccessExpireMinutes: 30,
			RefreshExpireDays:   7,
		},
		Risk: Risk{
			BehaviorWeight:    0.4,
			SensitivityWeight: 0.3,
			IntegrityWeight:   0.3,
			Contamination:     0.1,
		},
		Queue: Queue{
			Capacity:        1000,
			NearCapacityPct: 0.9,
			Workers:         4,
		},
	}
}

// Load reads the yaml file at path over the defaults, then applies
// environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.DB.URL, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setInt(&c.Auth.AccessExpireMinutes, "ACCESS_TOKEN_EXPIRE_MINUTES")
	setInt(&c.Auth.RefreshExpireDays, "REFRESH_TOKEN_EXPIRE_DAYS")
	setFloat(&c.Risk.BehaviorWeight, "RISK_BEHAVIOR_WEIGHT")
	setFloat(&c.Risk.SensitivityWeight, "RISK_SENSITIVITY_WEIGHT")
	setFloat(&c.Risk.IntegrityWeight, "RISK_INTEGRITY_WEIGHT")
	setFloat(&c.Risk.Contamination, "ANOMALY_CONTAMINATION")
	setInt(&c.Queue.Capacity, "QUEUE_CAPACITY")
	setFloat(&c.Queue.NearCapacityPct, "QUEUE_NEAR_CAPACITY_PCT")
	setInt(&c.Queue.Workers, "WORKER_COUNT")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				origins = append(origins, p)
			}
		}
		c.Server.AllowedOrigins = origins
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
