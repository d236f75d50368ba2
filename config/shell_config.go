package config

import (
	"os"

	"gopkg.in/ini.v1"

	"github.com/mvbtree/mvbtree/logger"
)

// ShellConfig is cmd/mvbtree-shell's own connection profile, loaded from an
// INI file with sectioned keys, a deliberately different format from
// EngineOptions' TOML, since the shell's concerns (data directory, log
// destination) are not the library's.
type ShellConfig struct {
	DataDir         string
	DefaultPageSize uint32
	LogDestination  string
	LogLevel        string
}

// DefaultShellConfig returns reasonable values that work with no config
// file present at all.
func DefaultShellConfig() *ShellConfig {
	return &ShellConfig{
		DataDir:         "data",
		DefaultPageSize: DefaultEngineOptions().PageSize,
		LogDestination:  "stderr",
		LogLevel:        "info",
	}
}

// LoadShellConfig reads path as an INI file under a single "mvbtree"
// section, falling back to DefaultShellConfig's values for anything absent
// — including when path doesn't exist at all.
func LoadShellConfig(path string) *ShellConfig {
	cfg := DefaultShellConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debugf("mvbtree-shell: config file %s not found, using defaults", path)
		return cfg
	}

	raw, err := ini.Load(path)
	if err != nil {
		logger.Warnf("mvbtree-shell: failed to parse %s (%v), using defaults", path, err)
		return cfg
	}

	section := raw.Section("mvbtree")
	cfg.DataDir = section.Key("data_dir").MustString(cfg.DataDir)
	cfg.DefaultPageSize = uint32(section.Key("page_size").MustInt(int(cfg.DefaultPageSize)))
	cfg.LogDestination = section.Key("log_destination").MustString(cfg.LogDestination)
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)
	return cfg
}
