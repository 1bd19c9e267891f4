package config

import "slices"

// Changes lists the hot-reloadable differences between two configs.
// Everything else (listen address, storage, TLS, sample rates) needs a
// restart and is reported through RestartRequired.
type Changes struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DefaultsChanged is set when any user setting default moved.
	DefaultsChanged bool

	// RestartRequired names the sections whose changes are ignored until
	// the next start.
	RestartRequired []string
}

// Empty reports whether nothing actionable changed.
func (c Changes) Empty() bool {
	return !c.LogLevelChanged && !c.DefaultsChanged && len(c.RestartRequired) == 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) Changes {
	var c Changes

	if old.Server.LogLevel != new.Server.LogLevel {
		c.LogLevelChanged = true
		c.NewLogLevel = new.Server.LogLevel
	}
	c.DefaultsChanged = old.Defaults != new.Defaults

	so, sn := old.Server, new.Server
	if so.ListenAddr != sn.ListenAddr || so.LogFormat != sn.LogFormat || so.DataDir != sn.DataDir ||
		!slices.Equal(so.AllowedOrigins, sn.AllowedOrigins) || !sameTLS(so.TLS, sn.TLS) {
		c.RestartRequired = append(c.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		c.RestartRequired = append(c.RestartRequired, "audio")
	}
	if old.VAD != new.VAD {
		c.RestartRequired = append(c.RestartRequired, "vad")
	}
	if old.Remote != new.Remote {
		c.RestartRequired = append(c.RestartRequired, "remote")
	}
	return c
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
