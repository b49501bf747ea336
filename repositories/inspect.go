package repositories

import (
	"fmt"

	"github.com/mama165/sdk-go/database"
)

// InspectMapper renders a stored message for the badger debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	message, err := DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = "MESSAGE"
	row.Detail = fmt.Sprintf("#%d %s: %s", message.Sequence, message.DisplayName, message.Text)
	return row
}
