package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tmcgame/platform/internal/relay"
)

// Config is the optional yaml tuning file. Anything not set falls back to
// defaults, so the file can be omitted entirely in development.
type Config struct {
	Relay struct {
		Poll struct {
			ScoreStealMs  int `yaml:"score_steal_ms"`
			RelayQuizMs   int `yaml:"relay_quiz_ms"`
			GameWaitingMs int `yaml:"game_waiting_ms"`
		} `yaml:"poll"`
	} `yaml:"relay"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "tmcgame"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

func pollIntervals(config *Config) relay.PollIntervals {
	intervals := relay.DefaultPollIntervals()
	if ms := config.Relay.Poll.ScoreStealMs; ms > 0 {
		intervals.ScoreSteal = time.Duration(ms) * time.Millisecond
	}
	if ms := config.Relay.Poll.RelayQuizMs; ms > 0 {
		intervals.RelayQuiz = time.Duration(ms) * time.Millisecond
	}
	if ms := config.Relay.Poll.GameWaitingMs; ms > 0 {
		intervals.GameWaiting = time.Duration(ms) * time.Millisecond
	}
	return intervals
}
