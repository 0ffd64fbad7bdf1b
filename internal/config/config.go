package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Backbone kinds.
const (
	BackboneStomp  = "stomp"
	BackboneMemory = "memory"
)

// Config holds client configuration values.
type Config struct {
	ServerURL        string        `mapstructure:"server_url" yaml:"server_url" validate:"required,url"`
	Backbone         string        `mapstructure:"backbone" yaml:"backbone" validate:"oneof=stomp memory"`
	BackboneURL      string        `mapstructure:"backbone_url" yaml:"backbone_url" validate:"omitempty,url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout" validate:"gt=0"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	HeartBeat        time.Duration `mapstructure:"heartbeat" yaml:"heartbeat" validate:"gte=0"`
	PageSize         int           `mapstructure:"page_size" yaml:"page_size" validate:"gt=0"`
	DedupTolerance   time.Duration `mapstructure:"dedup_tolerance" yaml:"dedup_tolerance" validate:"gte=0"`
	User             string        `mapstructure:"user" yaml:"user"`
	StorePath        string        `mapstructure:"store_path" yaml:"store_path"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration pointing at a chat server on localhost.
func Default() Config {
	return Config{
		ServerURL:        "http://localhost:8080",
		Backbone:         BackboneStomp,
		BackboneURL:      "ws://localhost:8080/chat/websocket",
		HandshakeTimeout: 10 * time.Second,
		RequestTimeout:   10 * time.Second,
		HeartBeat:        10 * time.Second,
		PageSize:         20,
		DedupTolerance:   core.DefaultDedupTolerance,
		StorePath:        defaultStorePath(),
		LogLevel:         "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.Backbone != "" {
		c.Backbone = other.Backbone
	}
	if other.BackboneURL != "" {
		c.BackboneURL = other.BackboneURL
	}
	if other.HandshakeTimeout != 0 {
		c.HandshakeTimeout = other.HandshakeTimeout
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.HeartBeat != 0 {
		c.HeartBeat = other.HeartBeat
	}
	if other.PageSize != 0 {
		c.PageSize = other.PageSize
	}
	if other.DedupTolerance != 0 {
		c.DedupTolerance = other.DedupTolerance
	}
	if other.User != "" {
		c.User = other.User
	}
	if other.StorePath != "" {
		c.StorePath = other.StorePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "rooms.db"
	}
	return filepath.Join(dir, "roomchat", "rooms.db")
}
