// Package config provides the service configuration schema, loader and file
// watcher for the Reshka dictation server.
//
// The YAML file configures the process (listen address, logging, storage),
// the audio and detector parameters sent to browsers, and the defaults used
// for user settings that were never saved. The user settings themselves live
// in the key-value store; see package settings.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/pkg/provider/vad"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the matching slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogFormat selects the log output encoding.
type LogFormat string

const (
	LogFormatText   LogFormat = "text"
	LogFormatJSON   LogFormat = "json"
	LogFormatPretty LogFormat = "pretty"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatPretty:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	VAD      VADConfig      `yaml:"vad"`
	Remote   RemoteConfig   `yaml:"remote"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ServerConfig holds network, logging and storage settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects the handler: text, json or pretty.
	LogFormat LogFormat `yaml:"log_format"`

	// DataDir is where the key-value store keeps its files. Empty keeps
	// everything in memory and loses it on exit.
	DataDir string `yaml:"data_dir"`

	// AllowedOrigins lists extra host patterns allowed to open the
	// WebSocket, for pages served from another origin during development.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	// Browsers only grant microphone access on secure origins, so anything
	// other than localhost needs it.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig sets the sample rates on both sides of the bridge.
type AudioConfig struct {
	// CueSampleRate is the rate the feedback cues are synthesized at.
	CueSampleRate int `yaml:"cue_sample_rate"`

	// CaptureSampleRate is the rate of the segments browsers send.
	CaptureSampleRate int `yaml:"capture_sample_rate"`
}

// VADConfig holds the detector parameters forwarded to browsers.
type VADConfig struct {
	PositiveSpeechThreshold float64 `yaml:"positive_speech_threshold"`
	NegativeSpeechThreshold float64 `yaml:"negative_speech_threshold"`
	RedemptionFrames        int     `yaml:"redemption_frames"`
	MinSpeechFrames         int     `yaml:"min_speech_frames"`
}

// RemoteConfig tunes the chat-completions client.
type RemoteConfig struct {
	// AuthCheckPath is the key inspection route relative to the API base.
	AuthCheckPath string `yaml:"auth_check_path"`

	// RedirectDelay is how long credential errors stay visible before the
	// browser is sent to the configuration page.
	RedirectDelay time.Duration `yaml:"redirect_delay"`

	// Timeout bounds each remote request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultsConfig supplies the user settings used until the user saves their
// own. The API key is never configured here.
type DefaultsConfig struct {
	Endpoint         string `yaml:"endpoint"`
	SpeechModel      string `yaml:"speech_model"`
	RephraseModel    string `yaml:"rephrase_model"`
	QuestionModel    string `yaml:"question_model"`
	AutoSleepSeconds int    `yaml:"auto_sleep_seconds"`
}

// App returns the defaults as user settings. Blank fields fall back to the
// built-in defaults.
func (d DefaultsConfig) App() settings.App {
	return settings.App{
		Endpoint:         d.Endpoint,
		SpeechModel:      d.SpeechModel,
		RephraseModel:    d.RephraseModel,
		QuestionModel:    d.QuestionModel,
		AutoSleepSeconds: d.AutoSleepSeconds,
	}.Normalize(settings.DefaultApp())
}

// Detector returns the detector configuration for browsers.
func (c *Config) Detector() vad.Config {
	return vad.Config{
		SampleRate:              c.Audio.CaptureSampleRate,
		PositiveSpeechThreshold: c.VAD.PositiveSpeechThreshold,
		NegativeSpeechThreshold: c.VAD.NegativeSpeechThreshold,
		RedemptionFrames:        c.VAD.RedemptionFrames,
		MinSpeechFrames:         c.VAD.MinSpeechFrames,
	}
}
