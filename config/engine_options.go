// Package config holds the engine's own thin configuration wrapper plus
// the demo shell's separate connection profile, mirroring the split
// between programmatic defaults and an on-disk config file.
package config

import (
	"github.com/pelletier/go-toml"
)

// EngineOptions is what mvbtree.Open actually consumes. It is normally
// populated programmatically; LoadEngineOptions reads it from a TOML file
// for callers that prefer config-as-data.
type EngineOptions struct {
	PageSize      uint32 `toml:"page_size"`
	KeepRevisions bool   `toml:"keep_revisions"`
	LogLevel      string `toml:"log_level"`
}

// DefaultEngineOptions mirrors recordmgr's own defaults so a caller that
// never touches config gets the same behavior as recordmgr.Open(path, 0).
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		PageSize:      512,
		KeepRevisions: false,
		LogLevel:      "info",
	}
}

// LoadEngineOptions reads a TOML file at path, overlaying it onto
// DefaultEngineOptions. A missing or empty page_size/log_level falls back
// to the default rather than zeroing it out.
func LoadEngineOptions(path string) (EngineOptions, error) {
	opts := DefaultEngineOptions()
	tree, err := toml.LoadFile(path)
	if err != nil {
		return opts, err
	}
	if err := tree.Unmarshal(&opts); err != nil {
		return opts, err
	}
	if opts.PageSize == 0 {
		opts.PageSize = DefaultEngineOptions().PageSize
	}
	if opts.LogLevel == "" {
		opts.LogLevel = DefaultEngineOptions().LogLevel
	}
	return opts, nil
}
