package ui

import "github.com/theapemachine/engram/pkg/entity"

// Message types for internal events
type entitiesLoadedMsg struct {
	entityType string
	entities   []*entity.GenericEntity
}

type errorMsg struct{ err error }

// EntitySelectedMsg announces the record picked from the list pane.
type EntitySelectedMsg struct {
	Entity *entity.GenericEntity
}
