package config

import (
	v "github.com/cohesivestack/valgo"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/theapemachine/engram/pkg/sync"
)

/*
Validate checks the tree is internally consistent before any storage is
opened with it. It runs as part of Load but is also exported for callers
that assemble a Config by hand.
*/
func (config *Config) Validate() error {
	val := v.Is(v.String(config.Storage.Type, "storage.type").Not().Blank()).
		Is(v.String(config.Storage.BasePath, "storage.base_path").Not().Blank()).
		Is(v.String(config.Workspace.Name, "workspace.name").Not().Blank())

	if !val.Valid() {
		return errors.ErrValidation.WithMessagef("invalid configuration: %v", val.Error())
	}

	switch config.Storage.Type {
	case StorageGit, StorageMemory:
	default:
		return errors.ErrValidation.WithMessagef(
			"unknown storage type: %s", config.Storage.Type,
		)
	}

	if _, err := sync.ParseStrategy(config.Storage.SyncStrategy); err != nil {
		return err
	}

	if config.Workspace.SyncStrategy != "" {
		if _, err := sync.ParseStrategy(config.Workspace.SyncStrategy); err != nil {
			return err
		}
	}

	return nil
}
