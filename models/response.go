package models

import "time"

// Job statuses reported by the API.
const (
	JobQueued           = "queued"
	JobRunning          = "running"
	JobAwaitingEmail    = "awaiting_email"
	JobAwaitingPasscode = "awaiting_passcode"
	JobCompleted        = "completed"
	JobFailed           = "failed"
	JobCanceled         = "canceled"
)

// IsTerminal reports whether a job status will never change again.
func IsTerminal(status string) bool {
	return status == JobCompleted || status == JobFailed || status == JobCanceled
}

// ConvertResponse is the immediate response for POST /api/v1/convert.
type ConvertResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Progress reports how many pages have been captured.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ConversionOutput describes a finished PDF.
type ConversionOutput struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	PageCount int    `json:"page_count"`
}

// JobResponse is the response for GET /api/v1/jobs/:id.
type JobResponse struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Status    string            `json:"status"`
	Progress  Progress          `json:"progress"`
	Result    *ConversionOutput `json:"result,omitempty"`
	Error     *ErrorDetail      `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// HistoryResponse is the response for GET /api/v1/history.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// HistoryEntry is one past conversion.
type HistoryEntry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"` // "healthy" or "degraded"
	Uptime     string `json:"uptime"`
	Version    string `json:"version"`
	ActiveJobs int    `json:"active_jobs"`
	MaxJobs    int    `json:"max_jobs"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
