// Package config loads the supervisor's configuration from an optional TOML
// file, fsproxy.toml, looked up beside the executable and then in the
// current directory. Everything has a default; the file is not required.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/fsproxy/internal/logger"
	"github.com/loykin/fsproxy/internal/pidfile"
	"github.com/loykin/fsproxy/internal/supervisor"
	"github.com/spf13/viper"
)

const fileBase = "fsproxy" // fsproxy.toml

// Config is the explicit, passed-down configuration for one invocation.
// Nothing here is process-global state.
type Config struct {
	Listen           string        `mapstructure:"listen"`
	PIDFile          string        `mapstructure:"pidfile"`
	StopPollInterval time.Duration `mapstructure:"stop_poll_interval"`
	StopPollBudget   int           `mapstructure:"stop_poll_budget"`
	RestartSettle    time.Duration `mapstructure:"restart_settle"`
	Log              logger.Config `mapstructure:"log"`
}

// Default returns the built-in configuration, rooted at the executable's
// directory.
func Default() Config {
	dir := ExecutableDir()
	return Config{
		Listen:           "127.0.0.1:8080",
		PIDFile:          filepath.Join(dir, pidfile.DefaultName),
		StopPollInterval: supervisor.DefaultStopPollInterval,
		StopPollBudget:   supervisor.DefaultStopPollBudget,
		RestartSettle:    supervisor.DefaultRestartSettle,
	}
}

// Load reads configuration from path. With an empty path it searches for
// fsproxy.toml beside the executable, then in the current directory; a
// missing file yields the defaults. The FSPROXY_LOG_LEVEL environment
// variable overrides log.level either way.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(fileBase)
		v.AddConfigPath(ExecutableDir())
		v.AddConfigPath(".")
	}
	err := v.ReadInConfig()
	switch {
	case err == nil:
		if uerr := v.Unmarshal(&cfg); uerr != nil {
			return cfg, fmt.Errorf("parse %s: %w", v.ConfigFileUsed(), uerr)
		}
	case path == "" && isNotFound(err):
		// No config file anywhere; defaults apply.
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if lvl := os.Getenv("FSPROXY_LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

func isNotFound(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

// ExecutableDir returns the directory of the running executable, following
// one level of symbolic link. It falls back to "." when the executable path
// cannot be resolved.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if fi, lerr := os.Lstat(exe); lerr == nil && fi.Mode()&os.ModeSymlink != 0 {
		if target, rerr := os.Readlink(exe); rerr == nil {
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(exe), target)
			}
			exe = target
		}
	}
	return filepath.Dir(exe)
}
