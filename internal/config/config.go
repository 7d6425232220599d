// Package config provides configuration for go-camera commands.
// Settings come from an optional YAML file with environment overrides,
// so a bare binary still runs against /dev/video0 with sane defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// CameraConfig selects the capture device and the requested format.
// Drivers may clamp the requested values.
type CameraConfig struct {
	Device    int    `yaml:"device"`    // backend device index, e.g. /dev/video0 -> 0
	Width     int    `yaml:"width"`     // requested frame width in pixels
	Height    int    `yaml:"height"`    // requested frame height in pixels
	FrameRate int    `yaml:"framerate"` // requested frames per second
	Format    string `yaml:"format"`    // "MJPG" or "BGR3"
}

// WebConfig configures the preview HTTP server.
type WebConfig struct {
	Listen string `yaml:"listen"` // address for the preview server, e.g. ":8089"
}

// Config aggregates all daemon configuration.
type Config struct {
	Camera   CameraConfig `yaml:"camera"`
	Web      WebConfig    `yaml:"web"`
	LogLevel string       `yaml:"log_level"` // debug, info, warn, error
}

// Default returns the configuration used when no file or overrides are
// present: VGA MJPEG from device 0, preview on :8089.
func Default() Config {
	return Config{
		Camera: CameraConfig{
			Device:    0,
			Width:     640,
			Height:    480,
			FrameRate: 30,
			Format:    "MJPG",
		},
		Web:      WebConfig{Listen: ":8089"},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers CAMERA_* environment variables over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CAMERA_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Camera.Device = n
		}
	}
	if v := os.Getenv("CAMERA_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Camera.Width = n
		}
	}
	if v := os.Getenv("CAMERA_HEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Camera.Height = n
		}
	}
	if v := os.Getenv("CAMERA_FPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Camera.FrameRate = n
		}
	}
	if v := os.Getenv("CAMERA_FORMAT"); v != "" {
		cfg.Camera.Format = v
	}
	if v := os.Getenv("CAMERA_LISTEN"); v != "" {
		cfg.Web.Listen = v
	}
	if v := os.Getenv("CAMERA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks ranges that would otherwise fail deep inside the
// capture backend.
func (c Config) Validate() error {
	if c.Camera.Device < 0 {
		return fmt.Errorf("config: device index %d is negative", c.Camera.Device)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("config: invalid resolution %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FrameRate <= 0 || c.Camera.FrameRate > 240 {
		return fmt.Errorf("config: invalid frame rate %d", c.Camera.FrameRate)
	}
	if c.Web.Listen == "" {
		return fmt.Errorf("config: empty listen address")
	}
	return nil
}
