package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/didagent/pkg/errors"
)

// Loader reads configuration with the precedence defaults < file <
// environment. Environment variables use the DIDAGENT_ prefix with
// underscores for dots, e.g. DIDAGENT_SERVER_PORT.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader builds a loader for the optional config file at path.
func NewLoader(path string) *Loader {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("DIDAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return &Loader{v: v, path: path}
}

// Load reads and validates the configuration. A missing config file is not
// an error; defaults and environment still apply.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, errors.CodeInvalidArgument, "failed to read config file %s", l.path)
			}
		}
	}
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "invalid configuration")
	}
	return &cfg, nil
}

// Watch re-reads the file on change and hands the new configuration to
// onChange. Invalid updates are dropped; the previous configuration stays
// in effect.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}
		onChange(&cfg)
	})
	l.v.WatchConfig()
}
