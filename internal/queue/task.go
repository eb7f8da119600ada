package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/gerrot/api/internal/model"
)

const TaskTypeRender = "render:pdf"

// TaskPayload is the body of a render task.
type TaskPayload struct {
	JobID   string              `json:"jobId"`
	Request model.RenderRequest `json:"payload"`
}

func NewRenderTask(jobID string, req model.RenderRequest) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: jobID, Request: req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeRender, data), nil
}

// ParseRenderTask decodes and validates a render task body.
func ParseRenderTask(t *asynq.Task) (*TaskPayload, error) {
	var p TaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.JobID == "" {
		return nil, fmt.Errorf("task payload has no job id")
	}
	return &p, nil
}
