package config

import (
	"github.com/spf13/viper"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/theapemachine/engram/pkg/sync"
)

// Storage backends selectable through storage.type.
const (
	StorageGit    = "git"
	StorageMemory = "memory"
)

// Defaults applied when a key is absent from the loaded configuration.
const (
	DefaultBasePath  = ".engram"
	DefaultNamespace = "refs/engram"
	DefaultWorkspace = "default"
	DefaultAgentName = "default"
)

/*
Config is the root configuration tree for a workspace. It decodes from a
viper instance, so the same shape can arrive from a config file, environment
variables, or flags without the rest of the code caring which.
*/
type Config struct {
	Storage   StorageConfig           `mapstructure:"storage" json:"storage"`
	Workspace WorkspaceConfig         `mapstructure:"workspace" json:"workspace"`
	Features  FeatureFlags            `mapstructure:"features" json:"features"`
	Agents    map[string]AgentProfile `mapstructure:"agents" json:"agents"`
}

/*
StorageConfig selects and parameterizes the entity store backing a
workspace.
*/
type StorageConfig struct {
	Type         string `mapstructure:"type" json:"type"`
	BasePath     string `mapstructure:"base_path" json:"base_path"`
	Namespace    string `mapstructure:"namespace" json:"namespace"`
	SyncStrategy string `mapstructure:"sync_strategy" json:"sync_strategy"`
}

/*
WorkspaceConfig names the active workspace and the agent that operations
act as when no --agent flag is given. SyncStrategy, when set, overrides the
storage-level strategy for this workspace.
*/
type WorkspaceConfig struct {
	Name         string `mapstructure:"name" json:"name"`
	DefaultAgent string `mapstructure:"default_agent" json:"default_agent"`
	SyncStrategy string `mapstructure:"sync_strategy" json:"sync_strategy,omitempty"`
}

/*
FeatureFlags gates optional subsystems without code changes.
*/
type FeatureFlags struct {
	Plugins      bool `mapstructure:"plugins" json:"plugins"`
	Analytics    bool `mapstructure:"analytics" json:"analytics"`
	Experimental bool `mapstructure:"experimental" json:"experimental"`
}

/*
AgentProfile describes one registered agent. Specialization and Email are
optional; an empty string means unset.
*/
type AgentProfile struct {
	Name           string `mapstructure:"name" json:"name"`
	AgentType      string `mapstructure:"agent_type" json:"agent_type"`
	Specialization string `mapstructure:"specialization" json:"specialization,omitempty"`
	Email          string `mapstructure:"email" json:"email,omitempty"`
}

// DefaultConfig returns the tree Load would produce from an empty source.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:         StorageGit,
			BasePath:     DefaultBasePath,
			Namespace:    DefaultNamespace,
			SyncStrategy: string(sync.MergeWithConflictResolution),
		},
		Workspace: WorkspaceConfig{
			Name:         DefaultWorkspace,
			DefaultAgent: DefaultAgentName,
		},
		Features: FeatureFlags{
			Plugins:   true,
			Analytics: true,
		},
		Agents: make(map[string]AgentProfile),
	}
}

/*
Load decodes and validates a Config from the given viper instance. Keys the
source does not provide fall back to the documented defaults, so Load on a
fresh viper yields DefaultConfig.
*/
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	config := &Config{}

	if err := v.Unmarshal(config); err != nil {
		return nil, errors.ErrDeserialization.WithMessagef(
			"failed to decode configuration: %v", err,
		)
	}

	if config.Agents == nil {
		config.Agents = make(map[string]AgentProfile)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.type", StorageGit)
	v.SetDefault("storage.base_path", DefaultBasePath)
	v.SetDefault("storage.namespace", DefaultNamespace)
	v.SetDefault("storage.sync_strategy", string(sync.MergeWithConflictResolution))
	v.SetDefault("workspace.name", DefaultWorkspace)
	v.SetDefault("workspace.default_agent", DefaultAgentName)
	v.SetDefault("features.plugins", true)
	v.SetDefault("features.analytics", true)
	v.SetDefault("features.experimental", false)
}

/*
Strategy resolves the effective synchronization strategy, preferring the
workspace override over the storage default.
*/
func (config *Config) Strategy() (sync.Strategy, error) {
	raw := config.Workspace.SyncStrategy

	if raw == "" {
		raw = config.Storage.SyncStrategy
	}

	return sync.ParseStrategy(raw)
}

/*
Profile returns the registered profile for an agent. Unregistered agents get
a minimal profile so callers never have to special-case them; the zero
AgentType mirrors the setup default.
*/
func (config *Config) Profile(name string) AgentProfile {
	if profile, ok := config.Agents[name]; ok {
		if profile.Name == "" {
			profile.Name = name
		}

		return profile
	}

	return AgentProfile{Name: name, AgentType: "coder"}
}

/*
Merge overlays other onto config. Non-empty scalar fields in other win,
feature flags are taken wholesale, and agent profiles are inserted per key
so an overlay can add agents without restating the existing roster.
*/
func (config *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	mergeString(&config.Storage.Type, other.Storage.Type)
	mergeString(&config.Storage.BasePath, other.Storage.BasePath)
	mergeString(&config.Storage.Namespace, other.Storage.Namespace)
	mergeString(&config.Storage.SyncStrategy, other.Storage.SyncStrategy)
	mergeString(&config.Workspace.Name, other.Workspace.Name)
	mergeString(&config.Workspace.DefaultAgent, other.Workspace.DefaultAgent)
	mergeString(&config.Workspace.SyncStrategy, other.Workspace.SyncStrategy)

	config.Features = other.Features

	if config.Agents == nil {
		config.Agents = make(map[string]AgentProfile, len(other.Agents))
	}

	for name, profile := range other.Agents {
		config.Agents[name] = profile
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
