package app

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig is parsed from the environment. PORT keeps its bare name
// for compatibility with the usual deployment convention; everything else
// is namespaced.
type ServerConfig struct {
	Port           int    `env:"PORT" envDefault:"3000"`
	UploadDir      string `env:"QUADCHAT_UPLOAD_DIR" envDefault:"uploads"`
	StaticDir      string `env:"QUADCHAT_STATIC_DIR" envDefault:"public"`
	RoomCapacity   int    `env:"QUADCHAT_ROOM_CAPACITY" envDefault:"4"`
	RetentionDays  int    `env:"QUADCHAT_RETENTION_DAYS" envDefault:"7"`
	RetentionCron  string `env:"QUADCHAT_RETENTION_CRON" envDefault:"0 0 * * *"`
	MaxUploadBytes int64  `env:"QUADCHAT_MAX_UPLOAD_BYTES" envDefault:"104857600"`
	UploadRPM      int    `env:"QUADCHAT_UPLOAD_RPM" envDefault:"30"`
	LogLevel       string `env:"QUADCHAT_LOG_LEVEL" envDefault:"info"`
}

// LoadServerConfig reads the environment into a ServerConfig.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.RoomCapacity <= 0 {
		return ServerConfig{}, fmt.Errorf("room capacity must be positive, got %d", cfg.RoomCapacity)
	}
	if cfg.RetentionDays <= 0 {
		return ServerConfig{}, fmt.Errorf("retention days must be positive, got %d", cfg.RetentionDays)
	}
	return cfg, nil
}

// Addr returns the listen address for the configured port.
func (c ServerConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// RetentionWindow converts the day count into a duration.
func (c ServerConfig) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// ClientConfig is what the terminal client needs to get going.
type ClientConfig struct {
	ServerURL   string
	DisplayName string
	SessionPath string
}
