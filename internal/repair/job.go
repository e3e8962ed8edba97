// Package repair recomputes denormalized recommendation counters from the
// live recommendation collection.
package repair

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

// RecountJobType is the job queue type for a single-query counter recount.
const RecountJobType = "recount_query"

type recountPayload struct {
	QueryID string `json:"query_id"`
}

// NewRecountJob builds a queue entry asking the worker to recount queryID.
func NewRecountJob(queryID string) storage.Job {
	payload, _ := json.Marshal(recountPayload{QueryID: queryID})
	return storage.Job{
		ID:          uuid.NewString(),
		Type:        RecountJobType,
		PayloadJSON: string(payload),
	}
}

func parseRecountPayload(raw string) (string, error) {
	var p recountPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}
	if p.QueryID == "" {
		return "", fmt.Errorf("payload has no query_id")
	}
	return p.QueryID, nil
}
