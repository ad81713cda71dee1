package api

// TestRequest is the optional body of POST /api/v1/webhook/test.
type TestRequest struct {
	Message string `json:"message,omitempty"`
}

// DeliveryResponse is the API response for a delivery attempt.
type DeliveryResponse struct {
	ID            string `json:"id"`
	WebhookID     string `json:"webhook_id"`
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	SessionID     string `json:"session_id,omitempty"`
	ResponseCode  int    `json:"response_code"`
	AttemptNumber int    `json:"attempt_number"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	CreatedAt     string `json:"created_at"`
}

// DeadLetterResponse is the API response for a dead letter.
type DeadLetterResponse struct {
	ID        string `json:"id"`
	WebhookID string `json:"webhook_id"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	LastError string `json:"last_error"`
	Attempts  int    `json:"attempts"`
	CreatedAt string `json:"created_at"`
}

// StatusResponse acknowledges an accepted asynchronous action.
type StatusResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
