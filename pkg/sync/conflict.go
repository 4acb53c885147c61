package sync

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/theapemachine/engram/pkg/entity"
	"github.com/tidwall/gjson"
)

// conflictWindow bounds how far apart two different-agent writes can land
// and still count as concurrent edits.
const conflictWindow = 5 * time.Minute

/*
Conflict is the audit record logged when two agents changed the same entity
concurrently. The losing version is discarded after logging; no three-way
merge is attempted.
*/
type Conflict struct {
	EntityID   string   `json:"entity_id"`
	EntityType string   `json:"entity_type"`
	Strategy   Strategy `json:"strategy_used"`
	Winner     string   `json:"winner"`
	Loser      string   `json:"loser"`
	Details    []string `json:"conflicts_detected"`
}

// hasConflict reports whether two records for the same id count as a
// genuine concurrent edit: different agents, different payload values,
// timestamps inside the conflict window.
func hasConflict(a, b *entity.GenericEntity) bool {
	if a.Agent == b.Agent {
		return false
	}

	if equalPayloads(a.Data, b.Data) {
		return false
	}

	diff := a.Timestamp.Sub(b.Timestamp)
	if diff < 0 {
		diff = -diff
	}

	return diff < conflictWindow
}

// equalPayloads compares payloads as JSON values, so formatting and key
// order differences do not count as changes.
func equalPayloads(a, b json.RawMessage) bool {
	return reflect.DeepEqual(gjson.ParseBytes(a).Value(), gjson.ParseBytes(b).Value())
}

/*
analyzeConflict produces the per-field diff list for the audit record:
fields whose values differ, then fields only the incoming (newer seen)
version carries. Non-object payloads degrade to a generic note.
*/
func analyzeConflict(existing, incoming *entity.GenericEntity) []string {
	details := make([]string, 0)

	existingPayload := gjson.ParseBytes(existing.Data)
	incomingPayload := gjson.ParseBytes(incoming.Data)

	if existingPayload.IsObject() && incomingPayload.IsObject() {
		existingFields := existingPayload.Map()
		incomingFields := incomingPayload.Map()

		for _, key := range sortedKeys(existingFields) {
			incomingValue, ok := incomingFields[key]
			if !ok {
				continue
			}

			existingValue := existingFields[key]
			if !reflect.DeepEqual(existingValue.Value(), incomingValue.Value()) {
				details = append(details, fmt.Sprintf(
					"Field '%s' differs: %s vs %s",
					key, compactJSON(existingValue), compactJSON(incomingValue),
				))
			}
		}

		for _, key := range sortedKeys(incomingFields) {
			if _, ok := existingFields[key]; !ok {
				details = append(details, fmt.Sprintf(
					"Field '%s' only present in newer version", key,
				))
			}
		}
	}

	if len(details) == 0 {
		details = append(details, "Data differs but specific fields could not be identified")
	}

	return details
}

func sortedKeys(fields map[string]gjson.Result) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys
}

func compactJSON(value gjson.Result) string {
	data, err := json.Marshal(value.Value())
	if err != nil {
		return value.Raw
	}
	return string(data)
}
