package config

import "reflect"

// ConfigDiff describes what changed between two configs. Language pair and
// log level changes apply live; everything else needs a restart and is
// reported by dot-path in RestartRequired.
type ConfigDiff struct {
	LanguagesChanged bool
	NewLanguages     LanguagesConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists changed sections that cannot be hot-applied
	// (e.g., "devices", "translate").
	RestartRequired []string
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LanguagesChanged || d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Languages != new.Languages {
		d.LanguagesChanged = true
		d.NewLanguages = new.Languages
	}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Devices != new.Devices {
		d.RestartRequired = append(d.RestartRequired, "devices")
	}
	if old.VAD != new.VAD {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}
	// Translate entries hold an Options map, so == is not available.
	if !reflect.DeepEqual(old.Translate, new.Translate) {
		d.RestartRequired = append(d.RestartRequired, "translate")
	}
	if old.Pipeline != new.Pipeline {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}

	return d
}
