package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got: %v", err)
	}
}

func TestValidate_InvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero sample rate", func(c *Config) { c.Device.SampleRate = 0 }, "'sample_rate' must be > 0"},
		{"24-bit container", func(c *Config) { c.Device.BitDepth = 24 }, "'bit_depth' must be 16 or 32"},
		{"shift too large", func(c *Config) { c.Device.ShiftAmount = 16 }, "'shift_amount' must be in [0, 16)"},
		{"negative shift", func(c *Config) { c.Device.ShiftAmount = -1 }, "'shift_amount'"},
		{"stereo channel", func(c *Config) { c.Device.Channel = "both" }, "'channel' must be 'left' or 'right'"},
		{"empty block", func(c *Config) { c.Device.BlockFrames = 0 }, "'block_frames' must be > 0"},
		{"no dma buffers", func(c *Config) { c.Device.DMABufferCount = 0 }, "dma buffers"},
		{"unknown source", func(c *Config) { c.Source.Kind = "i2s" }, "'kind' must be"},
		{"file source without path", func(c *Config) { c.Source.Kind = "file" }, "'file' is required"},
		{"silent tone", func(c *Config) { c.Source.ToneLevel = 0 }, "'tone_level'"},
		{"zero duration", func(c *Config) { c.Recording.DurationSeconds = 0 }, "'duration_seconds' must be > 0"},
		{"empty link", func(c *Config) { c.Link.Address = " " }, "'address' is required"},
		{"flac output", func(c *Config) { c.Output.Format = "flac" }, "'format' must be 'wav' or 'raw'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadWithProfile_RejectsInvalidFile(t *testing.T) {
	configFile := createTempConfig(t, `
device:
  bit_depth: 24
`)

	_, err := LoadWithProfile(configFile, "")
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestReadRootConfig_MalformedYAML(t *testing.T) {
	configFile := createTempConfig(t, "device: [unclosed\n")

	if _, err := ReadRootConfig(configFile); err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
}

func TestIsSerialAddress(t *testing.T) {
	tests := map[string]bool{
		"serial:///dev/ttyUSB0": true,
		"/dev/ttyACM0":          true,
		"COM6":                  true,
		"stdio":                 false,
		"tcp://127.0.0.1:7070":  false,
	}
	for addr, want := range tests {
		if got := IsSerialAddress(addr); got != want {
			t.Errorf("IsSerialAddress(%q) = %v, want %v", addr, got, want)
		}
	}
}
