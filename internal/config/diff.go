package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is the only change applied without a restart.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level sections (by YAML key) that changed
	// and only take effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Server is compared without the log level, which is hot-applied.
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	sections := []struct {
		key      string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"audio", old.Audio, new.Audio},
		{"stream", old.Stream, new.Stream},
		{"inference", old.Inference, new.Inference},
		{"broadcast", old.Broadcast, new.Broadcast},
		{"providers", old.Providers, new.Providers},
		{"translation", old.Translation, new.Translation},
		{"diarization", old.Diarization, new.Diarization},
		{"transcripts", old.Transcripts, new.Transcripts},
		{"telemetry", old.Telemetry, new.Telemetry},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.key)
		}
	}
	return d
}
