package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// RootConfig mirrors the YAML file layout.
type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Device       DeviceConfig              `mapstructure:"device" yaml:"device"`
	Source       SourceConfig              `mapstructure:"source" yaml:"source"`
	Recording    RecordingConfig           `mapstructure:"recording" yaml:"recording"`
	Link         LinkConfig                `mapstructure:"link" yaml:"link"`
	Output       OutputConfig              `mapstructure:"output" yaml:"output"`
	Configs      map[string]*DeviceProfile `mapstructure:"configs" yaml:"configs"`
}

// Config is the resolved configuration used by the rest of the program.
type Config struct {
	Profile   string          `mapstructure:"-" yaml:"profile,omitempty"`
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Source    SourceConfig    `mapstructure:"source" yaml:"source"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Link      LinkConfig      `mapstructure:"link" yaml:"link"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// DeviceConfig describes the acquisition hardware. It is fixed for the
// lifetime of a process.
type DeviceConfig struct {
	SampleRate      int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	BitDepth        int    `mapstructure:"bit_depth" yaml:"bit_depth"`
	ShiftAmount     int    `mapstructure:"shift_amount" yaml:"shift_amount"`
	Channel         string `mapstructure:"channel" yaml:"channel"` // "left", "right"
	BlockFrames     int    `mapstructure:"block_frames" yaml:"block_frames"`
	DMABufferCount  int    `mapstructure:"dma_buffer_count" yaml:"dma_buffer_count"`
	DMABufferFrames int    `mapstructure:"dma_buffer_frames" yaml:"dma_buffer_frames"`
}

// DeviceProfile is a named hardware preset. Zero fields inherit from the
// device section.
type DeviceProfile struct {
	Description string       `mapstructure:"description" yaml:"description,omitempty"`
	Device      DeviceConfig `mapstructure:"device" yaml:"device"`
}

type SourceConfig struct {
	Kind      string  `mapstructure:"kind" yaml:"kind"`     // "tone", "portaudio", "file"
	Device    string  `mapstructure:"device" yaml:"device"` // PortAudio input device name, empty = default
	File      string  `mapstructure:"file" yaml:"file"`
	ToneHz    float64 `mapstructure:"tone_hz" yaml:"tone_hz"`
	ToneLevel float64 `mapstructure:"tone_level" yaml:"tone_level"`
}

type RecordingConfig struct {
	DurationSeconds int  `mapstructure:"duration_seconds" yaml:"duration_seconds"`
	Cancellable     bool `mapstructure:"cancellable" yaml:"cancellable"`
}

type LinkConfig struct {
	Address string `mapstructure:"address" yaml:"address"` // "stdio", "tcp://host:port", "serial:///dev/ttyUSB0"
	Baud    int    `mapstructure:"baud" yaml:"baud"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Format    string `mapstructure:"format" yaml:"format"` // "wav", "raw"
}

type InheritanceInfo struct {
	Device map[string]string // field -> "inherited" or "profile-specific"
}

var defaultConfig = Config{
	Device: DeviceConfig{
		SampleRate:      16000,
		BitDepth:        16,
		ShiftAmount:     0,
		Channel:         "left", // INMP441 with L/R tied to GND
		BlockFrames:     1024,
		DMABufferCount:  8,
		DMABufferFrames: 64,
	},
	Source: SourceConfig{
		Kind:      "tone",
		ToneHz:    440,
		ToneLevel: 0.5,
	},
	Recording: RecordingConfig{
		DurationSeconds: 5,
	},
	Link: LinkConfig{
		Address: "stdio",
		Baud:    921600,
	},
	Output: OutputConfig{
		Directory: filepath.Join("~", "Audio", "MicStream"),
		Format:    "wav",
	},
}

// builtinProfiles are the two observed microphone wirings: 16-bit standard
// format, and 24-bit samples left-justified in a 32-bit slot.
var builtinProfiles = map[string]*DeviceProfile{
	"inmp441-16": {
		Description: "INMP441, 16-bit standard I2S",
		Device:      DeviceConfig{BitDepth: 16, ShiftAmount: 0},
	},
	"inmp441-32": {
		Description: "INMP441, 24-bit MSB-justified in 32-bit slot",
		Device:      DeviceConfig{BitDepth: 32, ShiftAmount: 8},
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Output.Directory = expandPath(c.Output.Directory)
	return &c
}

// LoadWithProfile reads configFile (if it exists), selects the device profile
// and validates the result. A missing file yields the defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}

	cfg := &Config{
		Device:    rootConfig.Device,
		Source:    rootConfig.Source,
		Recording: rootConfig.Recording,
		Link:      rootConfig.Link,
		Output:    rootConfig.Output,
	}

	if configName != "" {
		selected, exists := lookupProfile(rootConfig, configName)
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found (available: %s)",
				configName, strings.Join(ProfileNames(rootConfig), ", "))
		}
		cfg = mergeProfile(cfg, selected)
		cfg.Profile = configName
	} else {
		cfg = mergeProfile(cfg, nil)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if need, have := cfg.DataRate(), cfg.LinkCapacity(); have > 0 && have < need {
		slog.Warn("Link cannot sustain acquisition data rate, output will throttle acquisition",
			"required_bytes_per_sec", need, "link_bytes_per_sec", have)
	}

	return cfg, nil
}

// ReadRootConfig loads the raw file through viper with defaults applied.
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MICSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
			slog.Debug("Config file not found, using defaults", "path", configFile)
		}
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for name, p := range rootConfig.Configs {
		if p == nil {
			return nil, fmt.Errorf("configs.%s: profile is empty", name)
		}
	}

	return &rootConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig
	v.SetDefault("device.sample_rate", d.Device.SampleRate)
	v.SetDefault("device.bit_depth", d.Device.BitDepth)
	v.SetDefault("device.shift_amount", d.Device.ShiftAmount)
	v.SetDefault("device.channel", d.Device.Channel)
	v.SetDefault("device.block_frames", d.Device.BlockFrames)
	v.SetDefault("device.dma_buffer_count", d.Device.DMABufferCount)
	v.SetDefault("device.dma_buffer_frames", d.Device.DMABufferFrames)
	v.SetDefault("source.kind", d.Source.Kind)
	v.SetDefault("source.device", d.Source.Device)
	v.SetDefault("source.file", d.Source.File)
	v.SetDefault("source.tone_hz", d.Source.ToneHz)
	v.SetDefault("source.tone_level", d.Source.ToneLevel)
	v.SetDefault("recording.duration_seconds", d.Recording.DurationSeconds)
	v.SetDefault("recording.cancellable", d.Recording.Cancellable)
	v.SetDefault("link.address", d.Link.Address)
	v.SetDefault("link.baud", d.Link.Baud)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.format", d.Output.Format)
}

func lookupProfile(root *RootConfig, name string) (*DeviceProfile, bool) {
	if p, ok := root.Configs[name]; ok {
		return p, true
	}
	p, ok := builtinProfiles[name]
	return p, ok
}

// ProfileNames lists file and built-in profile names, sorted.
func ProfileNames(root *RootConfig) []string {
	seen := make(map[string]bool)
	var names []string
	for name := range builtinProfiles {
		seen[name] = true
		names = append(names, name)
	}
	if root != nil {
		for name := range root.Configs {
			if !seen[name] {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// mergeProfile overlays the non-zero device fields of profile onto base and
// records where each device value came from.
func mergeProfile(base *Config, profile *DeviceProfile) *Config {
	result := *base
	result.Inheritance = &InheritanceInfo{Device: make(map[string]string)}

	track := func(field string, set bool) {
		if set {
			result.Inheritance.Device[field] = "profile-specific"
		} else {
			result.Inheritance.Device[field] = "inherited"
		}
	}

	var p DeviceConfig
	if profile != nil {
		p = profile.Device
	}

	if p.SampleRate != 0 {
		result.Device.SampleRate = p.SampleRate
	}
	track("sample_rate", p.SampleRate != 0)

	if p.BitDepth != 0 {
		result.Device.BitDepth = p.BitDepth
		// Shift amount belongs to the bit depth: a profile that changes the
		// container width also owns the shift, even when it is zero.
		result.Device.ShiftAmount = p.ShiftAmount
	} else if p.ShiftAmount != 0 {
		result.Device.ShiftAmount = p.ShiftAmount
	}
	track("bit_depth", p.BitDepth != 0)
	track("shift_amount", p.BitDepth != 0 || p.ShiftAmount != 0)

	if p.Channel != "" {
		result.Device.Channel = p.Channel
	}
	track("channel", p.Channel != "")

	if p.BlockFrames != 0 {
		result.Device.BlockFrames = p.BlockFrames
	}
	track("block_frames", p.BlockFrames != 0)

	if p.DMABufferCount != 0 {
		result.Device.DMABufferCount = p.DMABufferCount
	}
	track("dma_buffer_count", p.DMABufferCount != 0)

	if p.DMABufferFrames != 0 {
		result.Device.DMABufferFrames = p.DMABufferFrames
	}
	track("dma_buffer_frames", p.DMABufferFrames != 0)

	return &result
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if err := validateDevice(c.Device, "device"); err != nil {
		return err
	}

	switch c.Source.Kind {
	case "tone":
		if c.Source.ToneHz <= 0 {
			return fmt.Errorf("source: 'tone_hz' must be > 0, got: %.2f", c.Source.ToneHz)
		}
		if c.Source.ToneLevel <= 0 || c.Source.ToneLevel > 1 {
			return fmt.Errorf("source: 'tone_level' must be in (0, 1], got: %.2f", c.Source.ToneLevel)
		}
	case "portaudio":
	case "file":
		if c.Source.File == "" {
			return fmt.Errorf("source: 'file' is required for kind 'file'")
		}
	default:
		return fmt.Errorf("source: 'kind' must be 'tone', 'portaudio' or 'file', got: %s", c.Source.Kind)
	}

	if c.Recording.DurationSeconds <= 0 {
		return fmt.Errorf("recording: 'duration_seconds' must be > 0, got: %d", c.Recording.DurationSeconds)
	}

	if strings.TrimSpace(c.Link.Address) == "" {
		return fmt.Errorf("link: 'address' is required")
	}
	if c.Link.Baud < 0 {
		return fmt.Errorf("link: 'baud' must be >= 0, got: %d", c.Link.Baud)
	}

	if c.Output.Format != "wav" && c.Output.Format != "raw" {
		return fmt.Errorf("output: 'format' must be 'wav' or 'raw', got: %s", c.Output.Format)
	}

	return nil
}

func validateDevice(d DeviceConfig, prefix string) error {
	if d.SampleRate <= 0 {
		return fmt.Errorf("%s: 'sample_rate' must be > 0, got: %d", prefix, d.SampleRate)
	}
	if d.BitDepth != 16 && d.BitDepth != 32 {
		return fmt.Errorf("%s: 'bit_depth' must be 16 or 32, got: %d", prefix, d.BitDepth)
	}
	if d.ShiftAmount < 0 || d.ShiftAmount >= d.BitDepth {
		return fmt.Errorf("%s: 'shift_amount' must be in [0, %d), got: %d", prefix, d.BitDepth, d.ShiftAmount)
	}
	if d.Channel != "left" && d.Channel != "right" {
		return fmt.Errorf("%s: 'channel' must be 'left' or 'right', got: %s", prefix, d.Channel)
	}
	if d.BlockFrames <= 0 {
		return fmt.Errorf("%s: 'block_frames' must be > 0, got: %d", prefix, d.BlockFrames)
	}
	if d.DMABufferCount <= 0 || d.DMABufferFrames <= 0 {
		return fmt.Errorf("%s: dma buffers must be > 0, got: %d x %d", prefix, d.DMABufferCount, d.DMABufferFrames)
	}
	return nil
}

// FrameBytes is the size of one acquired frame.
func (c *Config) FrameBytes() int {
	return c.Device.BitDepth / 8
}

// BlockBytes is the size of the reusable acquisition buffer.
func (c *Config) BlockBytes() int {
	return c.Device.BlockFrames * c.FrameBytes()
}

// RecordBudget is the exact number of payload bytes one recording produces.
func (c *Config) RecordBudget() int {
	return c.Device.SampleRate * c.Recording.DurationSeconds * c.FrameBytes()
}

// DataRate is the sustained acquisition rate in bytes per second.
func (c *Config) DataRate() int {
	return c.Device.SampleRate * c.FrameBytes()
}

// LinkCapacity estimates the link throughput in bytes per second for serial
// links (8N1: ten bits on the wire per byte). Other transports report 0.
func (c *Config) LinkCapacity() int {
	if !IsSerialAddress(c.Link.Address) {
		return 0
	}
	return c.Link.Baud / 10
}

// IsSerialAddress reports whether address names a serial device.
func IsSerialAddress(address string) bool {
	return strings.HasPrefix(address, "serial://") || strings.HasPrefix(address, "/dev/") ||
		strings.HasPrefix(strings.ToUpper(address), "COM")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}

// RecordingPath is where a recording called name is stored.
func (c *Config) RecordingPath(name string) string {
	ext := c.Output.Format
	if ext == "" {
		ext = "wav"
	}
	return filepath.Join(c.Output.Directory, CleanFileName(name)+"."+ext)
}

// CleanFileName keeps letters, digits, hyphens and underscores, and turns
// spaces into underscores.
func CleanFileName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}
