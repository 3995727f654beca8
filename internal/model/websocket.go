package model

// WebSocket message types
const (
	WSMessageTypeConnected = "connected"
	WSMessageTypeProgress  = "progress"
	WSMessageTypeComplete  = "complete"
	WSMessageTypeFailed    = "failed"
	WSMessageTypePing      = "ping"
	WSMessageTypePong      = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSConnectedMessage greets a new subscriber with the job's current status.
type WSConnectedMessage struct {
	Type   string    `json:"type"`
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// WSProgressMessage represents a pipeline progress update
type WSProgressMessage struct {
	Type        string    `json:"type"`
	JobID       string    `json:"jobId"`
	Stage       StageKind `json:"stage"`
	Message     string    `json:"message"`
	Attempt     int       `json:"attempt,omitempty"`
	MaxAttempts int       `json:"maxAttempts,omitempty"`
	Score       *float64  `json:"score,omitempty"`
}

// WSCompleteMessage is the terminal event for a run that passed the gate.
type WSCompleteMessage struct {
	Type          string  `json:"type"`
	JobID         string  `json:"jobId"`
	Score         float64 `json:"score"`
	RevisionCount int     `json:"revisionCount"`
}

// WSFailedMessage is the terminal event for a run that did not.
type WSFailedMessage struct {
	Type          string   `json:"type"`
	JobID         string   `json:"jobId"`
	Error         string   `json:"error"`
	Score         *float64 `json:"score,omitempty"`
	RevisionCount int      `json:"revisionCount"`
}
