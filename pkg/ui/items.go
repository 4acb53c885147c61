package ui

import (
	"fmt"

	"github.com/theapemachine/engram/pkg/entity"
	"github.com/tidwall/gjson"
)

// entityItem implements list.Item for stored records.
type entityItem struct {
	record *entity.GenericEntity
}

func (item entityItem) Title() string {
	return item.record.ID
}

func (item entityItem) Description() string {
	line := fmt.Sprintf("%s · %s", item.record.Agent, item.record.Timestamp.Format("2006-01-02 15:04"))

	if summary := payloadSummary(item.record); summary != "" {
		line += " · " + summary
	}

	return line
}

func (item entityItem) FilterValue() string {
	return item.record.ID
}

// payloadSummary pulls a human-readable label out of the raw payload.
func payloadSummary(record *entity.GenericEntity) string {
	for _, path := range []string{"title", "name", "description"} {
		if value := gjson.GetBytes(record.Data, path); value.Exists() {
			return value.String()
		}
	}

	return ""
}
