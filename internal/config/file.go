package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir   = "z-council"
	userConfigName  = "config.yaml"
	projectFileName = ".z-council.yaml"
)

// FileConfig is the on-disk configuration layer.
type FileConfig struct {
	Defaults       ProviderSettings            `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Providers      map[string]ProviderSettings `yaml:"providers,omitempty" json:"providers,omitempty"`
	PersonaConfigs map[string]ProviderSettings `yaml:"persona_configs,omitempty" json:"persona_configs,omitempty"`
	Council        CouncilFileSettings         `yaml:"council,omitempty" json:"council,omitempty"`
	Persistence    PersistenceFileSettings     `yaml:"persistence,omitempty" json:"persistence,omitempty"`
}

// CouncilFileSettings mirrors CouncilConfig with optional fields.
type CouncilFileSettings struct {
	ConsensusType      string   `yaml:"consensus_type,omitempty" json:"consensus_type,omitempty"`
	MaxRounds          *int     `yaml:"max_rounds,omitempty" json:"max_rounds,omitempty"`
	StalemateThreshold *int     `yaml:"stalemate_threshold,omitempty" json:"stalemate_threshold,omitempty"`
	PassRatioThreshold *float64 `yaml:"pass_ratio_threshold,omitempty" json:"pass_ratio_threshold,omitempty"`
	PersonasFile       string   `yaml:"personas_file,omitempty" json:"personas_file,omitempty"`
}

// PersistenceFileSettings mirrors StoreConfig with optional fields.
type PersistenceFileSettings struct {
	Store      string `yaml:"store,omitempty" json:"store,omitempty"`
	RedisURL   string `yaml:"redis_url,omitempty" json:"redis_url,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
	TTLSeconds *int   `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// UserConfigPath returns the per-user config file location.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, userConfigDir, userConfigName)
}

// ProjectConfigPath returns the config file looked up in the working directory.
func ProjectConfigPath() string {
	return projectFileName
}

// ReadFile parses one YAML config file.
func ReadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &FileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteFile stores cfg as YAML, creating parent directories.
func WriteFile(path string, cfg *FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// readOptional reads path when it exists; a missing file is not an error.
func readOptional(path string) (*FileConfig, error) {
	if path == "" {
		return nil, nil
	}
	cfg, err := ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return cfg, err
}

// Merge overlays other on top of f and returns the result; neither input is modified.
func (f *FileConfig) Merge(other *FileConfig) *FileConfig {
	merged := &FileConfig{
		Providers:      map[string]ProviderSettings{},
		PersonaConfigs: map[string]ProviderSettings{},
	}
	for _, layer := range []*FileConfig{f, other} {
		if layer == nil {
			continue
		}
		merged.Defaults = merged.Defaults.MergeWith(layer.Defaults)
		for name, settings := range layer.Providers {
			merged.Providers[name] = merged.Providers[name].MergeWith(settings)
		}
		for name, settings := range layer.PersonaConfigs {
			merged.PersonaConfigs[name] = merged.PersonaConfigs[name].MergeWith(settings)
		}

		c := layer.Council
		if c.ConsensusType != "" {
			merged.Council.ConsensusType = c.ConsensusType
		}
		if c.MaxRounds != nil {
			merged.Council.MaxRounds = c.MaxRounds
		}
		if c.StalemateThreshold != nil {
			merged.Council.StalemateThreshold = c.StalemateThreshold
		}
		if c.PassRatioThreshold != nil {
			merged.Council.PassRatioThreshold = c.PassRatioThreshold
		}
		if c.PersonasFile != "" {
			merged.Council.PersonasFile = c.PersonasFile
		}

		p := layer.Persistence
		if p.Store != "" {
			merged.Persistence.Store = p.Store
		}
		if p.RedisURL != "" {
			merged.Persistence.RedisURL = p.RedisURL
		}
		if p.SQLitePath != "" {
			merged.Persistence.SQLitePath = p.SQLitePath
		}
		if p.TTLSeconds != nil {
			merged.Persistence.TTLSeconds = p.TTLSeconds
		}
	}
	return merged
}

// Redacted returns a copy safe to print.
func (f *FileConfig) Redacted() *FileConfig {
	out := f.Merge(nil)
	out.Defaults = out.Defaults.Redacted()
	for name, settings := range out.Providers {
		out.Providers[name] = settings.Redacted()
	}
	for name, settings := range out.PersonaConfigs {
		out.PersonaConfigs[name] = settings.Redacted()
	}
	return out
}
