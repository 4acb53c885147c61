package query

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/theapemachine/engram/pkg/entity"
	"github.com/tidwall/gjson"
)

// DefaultLimit caps result pages when the caller does not ask for a size.
const DefaultLimit = 50

// Order is the sort direction. Descending is the default so the most recent
// records come first.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// TimeRange bounds a query to records stamped inside [Start, End].
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

/*
Filter describes a server-side query: exact matches on type and agent,
equality checks on payload fields (gjson paths, so nested fields work),
case-insensitive substring search over the serialized payload, and a time
window. Sorting is by a payload field when SortBy is set, by timestamp
otherwise. Limit zero means the default page size; a negative limit
disables pagination.
*/
type Filter struct {
	EntityTypes  []string       `json:"entity_types,omitempty"`
	Agent        string         `json:"agent,omitempty"`
	TextSearch   string         `json:"text_search,omitempty"`
	FieldFilters map[string]any `json:"field_filters,omitempty"`
	TimeRange    *TimeRange     `json:"time_range,omitempty"`
	SortBy       string         `json:"sort_by,omitempty"`
	SortOrder    Order          `json:"sort_order,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// Result is one page of matches plus enough bookkeeping to page further.
type Result struct {
	Entities   []*entity.GenericEntity `json:"entities"`
	TotalCount int                     `json:"total_count"`
	HasMore    bool                    `json:"has_more"`
}

// Matches reports whether a single entity passes every predicate in the
// filter, ignoring sort and pagination.
func Matches(e *entity.GenericEntity, filter *Filter) bool {
	if filter == nil {
		return true
	}

	if len(filter.EntityTypes) > 0 {
		found := false
		for _, entityType := range filter.EntityTypes {
			if e.EntityType == entityType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Agent != "" && e.Agent != filter.Agent {
		return false
	}

	if tr := filter.TimeRange; tr != nil {
		if e.Timestamp.Before(tr.Start) || e.Timestamp.After(tr.End) {
			return false
		}
	}

	if filter.TextSearch != "" {
		haystack := strings.ToLower(string(e.Data))
		if !strings.Contains(haystack, strings.ToLower(filter.TextSearch)) {
			return false
		}
	}

	for path, expected := range filter.FieldFilters {
		if !fieldEquals(e.Data, path, expected) {
			return false
		}
	}

	return true
}

// fieldEquals compares the payload value at a gjson path against the
// expected value using JSON value equality, so 1 and 1.0 compare equal and
// object key order does not matter.
func fieldEquals(data []byte, path string, expected any) bool {
	actual := gjson.GetBytes(data, path)
	if !actual.Exists() {
		return false
	}

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		return false
	}

	return reflect.DeepEqual(actual.Value(), gjson.ParseBytes(expectedJSON).Value())
}

/*
Apply runs the full query pipeline over a scan: predicate filtering, then
sorting, then pagination. TotalCount reflects the match count before the
page was cut, and HasMore tells the caller whether another page exists.
*/
func Apply(entities []*entity.GenericEntity, filter *Filter) *Result {
	if filter == nil {
		filter = &Filter{}
	}

	matched := make([]*entity.GenericEntity, 0, len(entities))
	for _, e := range entities {
		if Matches(e, filter) {
			matched = append(matched, e)
		}
	}

	sortEntities(matched, filter)

	total := len(matched)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	limit := filter.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	var page []*entity.GenericEntity
	if offset < total {
		end := total
		if limit > 0 && offset+limit < total {
			end = offset + limit
		}
		page = matched[offset:end]
	} else {
		page = []*entity.GenericEntity{}
	}

	return &Result{
		Entities:   page,
		TotalCount: total,
		HasMore:    offset+len(page) < total,
	}
}

// Count returns how many entities pass the filter, ignoring pagination.
func Count(entities []*entity.GenericEntity, filter *Filter) int {
	count := 0
	for _, e := range entities {
		if Matches(e, filter) {
			count++
		}
	}
	return count
}

func sortEntities(entities []*entity.GenericEntity, filter *Filter) {
	order := filter.SortOrder
	if order == "" {
		order = OrderDesc
	}

	if filter.SortBy == "" {
		sort.SliceStable(entities, func(i, j int) bool {
			cmp := entities[i].Timestamp.Compare(entities[j].Timestamp)
			if order == OrderAsc {
				return cmp < 0
			}
			return cmp > 0
		})
		return
	}

	sort.SliceStable(entities, func(i, j int) bool {
		cmp := compareField(entities[i].Data, entities[j].Data, filter.SortBy)
		if order == OrderAsc {
			return cmp < 0
		}
		return cmp > 0
	})
}

// compareField orders payloads by the string form of the value at path.
// Records missing the field sort before records that have it.
func compareField(a, b []byte, path string) int {
	aValue := gjson.GetBytes(a, path)
	bValue := gjson.GetBytes(b, path)

	switch {
	case aValue.Exists() && bValue.Exists():
		return strings.Compare(aValue.String(), bValue.String())
	case aValue.Exists():
		return 1
	case bValue.Exists():
		return -1
	}
	return 0
}
