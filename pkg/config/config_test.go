package config

import (
	stderrors "errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/theapemachine/engram/pkg/sync"
)

func fromYAML(doc string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yml")

	if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
		return nil, err
	}

	return Load(v)
}

// TestDefaultConfig makes sure the documented defaults hold.
func TestDefaultConfig(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		config := DefaultConfig()

		Convey("It should select the git backend", func() {
			So(config.Storage.Type, ShouldEqual, StorageGit)
			So(config.Storage.BasePath, ShouldEqual, DefaultBasePath)
			So(config.Storage.Namespace, ShouldEqual, DefaultNamespace)
			So(config.Storage.SyncStrategy, ShouldEqual, string(sync.MergeWithConflictResolution))
		})

		Convey("It should name the default workspace and agent", func() {
			So(config.Workspace.Name, ShouldEqual, DefaultWorkspace)
			So(config.Workspace.DefaultAgent, ShouldEqual, DefaultAgentName)
			So(config.Workspace.SyncStrategy, ShouldBeEmpty)
		})

		Convey("It should enable plugins and analytics only", func() {
			So(config.Features.Plugins, ShouldBeTrue)
			So(config.Features.Analytics, ShouldBeTrue)
			So(config.Features.Experimental, ShouldBeFalse)
		})

		Convey("It should have an empty agent roster", func() {
			So(config.Agents, ShouldNotBeNil)
			So(config.Agents, ShouldBeEmpty)
		})
	})
}

// TestLoad covers decoding from a viper source.
func TestLoad(t *testing.T) {
	Convey("Given a viper source", t, func() {
		Convey("When the source is empty", func() {
			config, err := Load(viper.New())

			Convey("It should fall back to the defaults", func() {
				So(err, ShouldBeNil)
				So(config, ShouldResemble, DefaultConfig())
			})
		})

		Convey("When the source sets a subset of keys", func() {
			config, err := fromYAML(`
storage:
  base_path: .engram-data
  sync_strategy: latest_wins
workspace:
  name: platform
  default_agent: alice
agents:
  alice:
    name: alice
    agent_type: implementation
    specialization: parsers
    email: alice@example.com
  bob:
    agent_type: quality_assurance
`)

			Convey("It should overlay them onto the defaults", func() {
				So(err, ShouldBeNil)
				So(config.Storage.Type, ShouldEqual, StorageGit)
				So(config.Storage.BasePath, ShouldEqual, ".engram-data")
				So(config.Storage.Namespace, ShouldEqual, DefaultNamespace)
				So(config.Storage.SyncStrategy, ShouldEqual, string(sync.LatestWins))
				So(config.Workspace.Name, ShouldEqual, "platform")
				So(config.Workspace.DefaultAgent, ShouldEqual, "alice")
				So(config.Agents, ShouldHaveLength, 2)
				So(config.Agents["alice"].Specialization, ShouldEqual, "parsers")
				So(config.Agents["bob"].AgentType, ShouldEqual, "quality_assurance")
			})
		})

		Convey("When the source names an unknown strategy", func() {
			_, err := fromYAML("storage:\n  sync_strategy: coin_flip\n")

			Convey("It should refuse to load", func() {
				So(err, ShouldNotBeNil)
				So(stderrors.Is(err, errors.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the source blanks a required key", func() {
			_, err := fromYAML("storage:\n  base_path: \"\"\n")

			Convey("It should refuse to load", func() {
				So(err, ShouldNotBeNil)
				So(stderrors.Is(err, errors.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the source names an unknown storage type", func() {
			_, err := fromYAML("storage:\n  type: postgres\n")

			Convey("It should refuse to load", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown storage type")
			})
		})
	})
}

// TestConfig_Strategy covers strategy resolution.
func TestConfig_Strategy(t *testing.T) {
	Convey("Given a configuration", t, func() {
		config := DefaultConfig()

		Convey("When no workspace override is set", func() {
			strategy, err := config.Strategy()

			Convey("It should use the storage strategy", func() {
				So(err, ShouldBeNil)
				So(strategy.Kind, ShouldEqual, sync.MergeWithConflictResolution)
			})
		})

		Convey("When the workspace overrides the strategy", func() {
			config.Workspace.SyncStrategy = "priority_wins:Alice"
			strategy, err := config.Strategy()

			Convey("It should win over the storage strategy", func() {
				So(err, ShouldBeNil)
				So(strategy.Kind, ShouldEqual, sync.PriorityWins)
				So(strategy.PriorityAgent, ShouldEqual, "Alice")
			})
		})
	})
}

// TestConfig_Profile covers agent profile lookup.
func TestConfig_Profile(t *testing.T) {
	Convey("Given a configuration with a registered agent", t, func() {
		config := DefaultConfig()
		config.Agents["alice"] = AgentProfile{
			Name:      "alice",
			AgentType: "implementation",
		}
		config.Agents["bob"] = AgentProfile{AgentType: "quality_assurance"}

		Convey("When the agent is registered", func() {
			Convey("It should return the registered profile", func() {
				So(config.Profile("alice").AgentType, ShouldEqual, "implementation")
			})

			Convey("It should backfill a missing name from the key", func() {
				So(config.Profile("bob").Name, ShouldEqual, "bob")
			})
		})

		Convey("When the agent is not registered", func() {
			profile := config.Profile("carol")

			Convey("It should synthesize a minimal profile", func() {
				So(profile.Name, ShouldEqual, "carol")
				So(profile.AgentType, ShouldEqual, "coder")
			})
		})
	})
}

// TestConfig_Merge covers overlay semantics.
func TestConfig_Merge(t *testing.T) {
	Convey("Given a base configuration", t, func() {
		base := DefaultConfig()
		base.Agents["alice"] = AgentProfile{Name: "alice", AgentType: "implementation"}

		Convey("When an overlay is merged", func() {
			base.Merge(&Config{
				Storage:   StorageConfig{SyncStrategy: string(sync.LatestWins)},
				Workspace: WorkspaceConfig{DefaultAgent: "bob"},
				Features:  FeatureFlags{Analytics: true, Experimental: true},
				Agents: map[string]AgentProfile{
					"bob": {Name: "bob", AgentType: "quality_assurance"},
				},
			})

			Convey("It should overwrite only the fields the overlay sets", func() {
				So(base.Storage.Type, ShouldEqual, StorageGit)
				So(base.Storage.BasePath, ShouldEqual, DefaultBasePath)
				So(base.Storage.SyncStrategy, ShouldEqual, string(sync.LatestWins))
				So(base.Workspace.Name, ShouldEqual, DefaultWorkspace)
				So(base.Workspace.DefaultAgent, ShouldEqual, "bob")
			})

			Convey("It should replace the feature flags wholesale", func() {
				So(base.Features.Plugins, ShouldBeFalse)
				So(base.Features.Analytics, ShouldBeTrue)
				So(base.Features.Experimental, ShouldBeTrue)
			})

			Convey("It should keep existing agents and add new ones", func() {
				So(base.Agents, ShouldHaveLength, 2)
				So(base.Agents["alice"].AgentType, ShouldEqual, "implementation")
				So(base.Agents["bob"].AgentType, ShouldEqual, "quality_assurance")
			})
		})

		Convey("When the overlay is nil", func() {
			before := *base
			base.Merge(nil)

			Convey("It should change nothing", func() {
				So(base.Storage, ShouldResemble, before.Storage)
				So(base.Workspace, ShouldResemble, before.Workspace)
			})
		})

		Convey("When the base has no agent roster", func() {
			empty := &Config{}
			empty.Merge(&Config{Agents: map[string]AgentProfile{
				"alice": {Name: "alice"},
			}})

			Convey("It should create one", func() {
				So(empty.Agents, ShouldHaveLength, 1)
			})
		})
	})
}
