package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/docforge/ingestproc/internal/model"
)

// stagePath builds the text[] path jsonb_set needs to address one stage
// key inside the enrichment_status column.
func stagePath(stage string) string {
	return fmt.Sprintf("{%s}", stage)
}

// pgPath builds the text[] path for a single top-level metadata key.
func pgPath(key string) string {
	return fmt.Sprintf("{%s}", key)
}

func stageStatusJSON(status string, updatedAt time.Time, errMsg string) []byte {
	s := model.StageStatus{Status: status, UpdatedAt: updatedAt, ErrorMessage: errMsg}
	b, _ := json.Marshal(s)
	return b
}

func resultJSON(result map[string]interface{}) []byte {
	b, _ := json.Marshal(result)
	return b
}
