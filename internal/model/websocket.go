package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// Notification outcomes
const (
	OutcomeProgress  = "progress"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Notification is the payload published for a job's owner.
type Notification struct {
	JobID     string       `json:"jobId"`
	Outcome   string       `json:"outcome"`
	Progress  int          `json:"progress,omitempty"`
	ResultRef *ArtifactRef `json:"resultRef,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type     string   `json:"type"`
	JobID    string   `json:"jobId"`
	Progress int      `json:"progress"`
	State    JobState `json:"state"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type      string       `json:"type"`
	JobID     string       `json:"jobId"`
	ResultRef *ArtifactRef `json:"resultRef"`
}

// WSErrorMessage represents a failed job
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
