package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/pkg/provider/llm/openai"
	"github.com/MrWong99/reshka/pkg/provider/vad"
)

// Built-in values applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8080"
	DefaultCueSampleRate = 44100
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}

	if cfg.Audio.CueSampleRate == 0 {
		cfg.Audio.CueSampleRate = DefaultCueSampleRate
	}
	det := vad.DefaultConfig()
	if cfg.Audio.CaptureSampleRate == 0 {
		cfg.Audio.CaptureSampleRate = det.SampleRate
	}
	if cfg.VAD.PositiveSpeechThreshold == 0 {
		cfg.VAD.PositiveSpeechThreshold = det.PositiveSpeechThreshold
	}
	if cfg.VAD.NegativeSpeechThreshold == 0 {
		cfg.VAD.NegativeSpeechThreshold = det.NegativeSpeechThreshold
	}
	if cfg.VAD.RedemptionFrames == 0 {
		cfg.VAD.RedemptionFrames = det.RedemptionFrames
	}
	if cfg.VAD.MinSpeechFrames == 0 {
		cfg.VAD.MinSpeechFrames = det.MinSpeechFrames
	}

	if cfg.Remote.AuthCheckPath == "" {
		cfg.Remote.AuthCheckPath = openai.DefaultAuthCheckPath
	}
	if cfg.Remote.RedirectDelay == 0 {
		cfg.Remote.RedirectDelay = 1500 * time.Millisecond
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, pretty", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.CueSampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.cue_sample_rate %d must be at least 8000", cfg.Audio.CueSampleRate))
	}
	if err := cfg.Detector().Validate(); err != nil {
		errs = append(errs, err)
	}

	// Remote
	if strings.HasPrefix(cfg.Remote.AuthCheckPath, "/") {
		errs = append(errs, fmt.Errorf("remote.auth_check_path %q must be relative to the API base", cfg.Remote.AuthCheckPath))
	}
	if cfg.Remote.RedirectDelay < 0 {
		errs = append(errs, fmt.Errorf("remote.redirect_delay %s must not be negative", cfg.Remote.RedirectDelay))
	}
	if cfg.Remote.Timeout < 0 {
		errs = append(errs, fmt.Errorf("remote.timeout %s must not be negative", cfg.Remote.Timeout))
	}

	// Defaults
	if s := cfg.Defaults.AutoSleepSeconds; s != 0 && s < settings.MinAutoSleepSeconds {
		errs = append(errs, fmt.Errorf("defaults.auto_sleep_seconds %d is below the minimum of %d", s, settings.MinAutoSleepSeconds))
	}

	return errors.Join(errs...)
}
