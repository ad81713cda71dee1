package api

import "github.com/leadchat/leadchat/pkg/leads"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Sessions  *int   `json:"sessions,omitempty"`
}

// MailCheckResponse is the body of the SMTP test routes.
type MailCheckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	SentTo  string `json:"sentTo,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LeadListResponse is the body of GET /api/v1/leads.
type LeadListResponse struct {
	Leads []leads.Lead `json:"leads"`
}
