package query

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/engram/pkg/entity"
)

func record(id, entityType, agent string, ts time.Time, data string) *entity.GenericEntity {
	return &entity.GenericEntity{
		ID:         id,
		EntityType: entityType,
		Agent:      agent,
		Timestamp:  ts,
		Data:       json.RawMessage(data),
	}
}

func sampleEntities() []*entity.GenericEntity {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	return []*entity.GenericEntity{
		record("task-1", entity.TypeTask, "alice", base, `{"title":"Fix parser","status":"open","priority":2}`),
		record("task-2", entity.TypeTask, "bob", base.Add(time.Hour), `{"title":"Write docs","status":"done","priority":1}`),
		record("task-3", entity.TypeTask, "alice", base.Add(2*time.Hour), `{"title":"Review PR","status":"open"}`),
		record("ctx-1", entity.TypeContext, "bob", base.Add(3*time.Hour), `{"summary":"Sprint planning notes"}`),
	}
}

func ids(result *Result) []string {
	out := make([]string, 0, len(result.Entities))
	for _, e := range result.Entities {
		out = append(out, e.ID)
	}
	return out
}

func TestApply_NoFilter(t *testing.T) {
	result := Apply(sampleEntities(), nil)
	assert.Equal(t, 4, result.TotalCount)
	assert.False(t, result.HasMore)

	// Default ordering is timestamp descending.
	assert.Equal(t, []string{"ctx-1", "task-3", "task-2", "task-1"}, ids(result))
}

func TestApply_FilterByEntityType(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{EntityTypes: []string{entity.TypeTask}})
	assert.Equal(t, 3, result.TotalCount)

	result = Apply(sampleEntities(), &Filter{
		EntityTypes: []string{entity.TypeTask, entity.TypeContext},
	})
	assert.Equal(t, 4, result.TotalCount)
}

func TestApply_FilterByAgent(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{Agent: "alice"})
	assert.Equal(t, 2, result.TotalCount)

	result = Apply(sampleEntities(), &Filter{Agent: "carol"})
	assert.Equal(t, 0, result.TotalCount)
	assert.Empty(t, result.Entities)
}

func TestApply_FilterByTimeRange(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	// Bounds are inclusive.
	result := Apply(sampleEntities(), &Filter{
		TimeRange: &TimeRange{Start: base, End: base.Add(time.Hour)},
	})
	assert.Equal(t, 2, result.TotalCount)

	result = Apply(sampleEntities(), &Filter{
		TimeRange: &TimeRange{Start: base.Add(4 * time.Hour), End: base.Add(5 * time.Hour)},
	})
	assert.Equal(t, 0, result.TotalCount)
}

func TestApply_TextSearch(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{TextSearch: "PARSER"})
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "task-1", result.Entities[0].ID)

	result = Apply(sampleEntities(), &Filter{TextSearch: "nope"})
	assert.Equal(t, 0, result.TotalCount)
}

func TestApply_FieldFilters(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{
		FieldFilters: map[string]any{"status": "open"},
	})
	assert.Equal(t, 2, result.TotalCount)

	// Numeric equality normalizes through JSON values.
	result = Apply(sampleEntities(), &Filter{
		FieldFilters: map[string]any{"priority": 1},
	})
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "task-2", result.Entities[0].ID)

	// Entities missing the field never match.
	result = Apply(sampleEntities(), &Filter{
		FieldFilters: map[string]any{"priority": 99},
	})
	assert.Equal(t, 0, result.TotalCount)
}

func TestApply_FieldFilters_NestedPath(t *testing.T) {
	entities := []*entity.GenericEntity{
		record("k-1", entity.TypeKnowledge, "alice", time.Now().UTC(), `{"source":{"kind":"web","url":"https://example.com"}}`),
		record("k-2", entity.TypeKnowledge, "alice", time.Now().UTC(), `{"source":{"kind":"file"}}`),
	}

	result := Apply(entities, &Filter{
		FieldFilters: map[string]any{"source.kind": "web"},
	})
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "k-1", result.Entities[0].ID)
}

func TestApply_SortByField(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{
		EntityTypes: []string{entity.TypeTask},
		SortBy:      "title",
		SortOrder:   OrderAsc,
	})
	assert.Equal(t, []string{"task-1", "task-3", "task-2"}, ids(result))

	result = Apply(sampleEntities(), &Filter{
		EntityTypes: []string{entity.TypeTask},
		SortBy:      "title",
		SortOrder:   OrderDesc,
	})
	assert.Equal(t, []string{"task-2", "task-3", "task-1"}, ids(result))
}

func TestApply_SortByField_MissingSortsFirstAscending(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{
		SortBy:    "status",
		SortOrder: OrderAsc,
	})

	// ctx-1 has no status field and sorts before every record that does.
	assert.Equal(t, "ctx-1", result.Entities[0].ID)
}

func TestApply_SortByTimestampAscending(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{SortOrder: OrderAsc})
	assert.Equal(t, []string{"task-1", "task-2", "task-3", "ctx-1"}, ids(result))
}

func TestApply_Pagination(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{SortOrder: OrderAsc, Limit: 2})
	assert.Equal(t, 4, result.TotalCount)
	assert.True(t, result.HasMore)
	assert.Equal(t, []string{"task-1", "task-2"}, ids(result))

	result = Apply(sampleEntities(), &Filter{SortOrder: OrderAsc, Limit: 2, Offset: 2})
	assert.False(t, result.HasMore)
	assert.Equal(t, []string{"task-3", "ctx-1"}, ids(result))
}

func TestApply_OffsetBeyondTotal(t *testing.T) {
	result := Apply(sampleEntities(), &Filter{Offset: 10})
	assert.Equal(t, 4, result.TotalCount)
	assert.Empty(t, result.Entities)
	assert.False(t, result.HasMore)
}

func TestApply_DefaultLimit(t *testing.T) {
	entities := make([]*entity.GenericEntity, 0, 60)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		entities = append(entities, record(
			fmt.Sprintf("task-%02d", i), entity.TypeTask, "alice",
			base.Add(time.Duration(i)*time.Minute), `{}`,
		))
	}

	result := Apply(entities, &Filter{})
	assert.Len(t, result.Entities, DefaultLimit)
	assert.Equal(t, 60, result.TotalCount)
	assert.True(t, result.HasMore)
}

func TestApply_NegativeLimitDisablesPagination(t *testing.T) {
	entities := make([]*entity.GenericEntity, 0, 60)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		entities = append(entities, record(
			fmt.Sprintf("task-%02d", i), entity.TypeTask, "alice",
			base.Add(time.Duration(i)*time.Minute), `{}`,
		))
	}

	result := Apply(entities, &Filter{Limit: -1})
	assert.Len(t, result.Entities, 60)
	assert.False(t, result.HasMore)
}

func TestCount(t *testing.T) {
	assert.Equal(t, 4, Count(sampleEntities(), nil))
	assert.Equal(t, 3, Count(sampleEntities(), &Filter{EntityTypes: []string{entity.TypeTask}}))
	assert.Equal(t, 2, Count(sampleEntities(), &Filter{Agent: "alice"}))
}

func TestMatches_CombinedPredicates(t *testing.T) {
	e := record("task-1", entity.TypeTask, "alice",
		time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		`{"title":"Fix parser","status":"open"}`)

	assert.True(t, Matches(e, &Filter{
		EntityTypes:  []string{entity.TypeTask},
		Agent:        "alice",
		TextSearch:   "parser",
		FieldFilters: map[string]any{"status": "open"},
	}))

	assert.False(t, Matches(e, &Filter{
		EntityTypes:  []string{entity.TypeTask},
		Agent:        "alice",
		FieldFilters: map[string]any{"status": "done"},
	}))
}
