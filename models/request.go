package models

// ConvertRequest is the payload for POST /api/v1/convert.
type ConvertRequest struct {
	// URL is the document link to convert. Required.
	URL string `json:"url" binding:"required"`

	// Email is submitted when the document asks for one.
	// When empty and the document requires it, the job pauses in
	// "awaiting_email" until POST /api/v1/jobs/:id/credentials.
	Email string `json:"email,omitempty" binding:"omitempty,email"`

	// Passcode is submitted when the document is passcode protected.
	Passcode string `json:"passcode,omitempty"`

	// Name overrides the output file name (without extension).
	// Default: the document title, else a placeholder name.
	Name string `json:"name,omitempty" binding:"omitempty,max=200"`

	// WebhookURL receives a signed POST when the job reaches a terminal state.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// CredentialsRequest is the payload for POST /api/v1/jobs/:id/credentials.
type CredentialsRequest struct {
	Email    string `json:"email,omitempty" binding:"omitempty,email"`
	Passcode string `json:"passcode,omitempty"`

	// Cancel declines to provide credentials and aborts the job.
	Cancel bool `json:"cancel,omitempty"`
}
