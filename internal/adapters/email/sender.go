package email

import (
	"context"
	"time"
)

// SendRequest contains the data needed to send an email via an external provider.
type SendRequest struct {
	To      []string `json:"to"`
	From    string   `json:"from,omitempty"` // sender address; empty uses the configured default
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// SendResult contains the response from the email provider.
type SendResult struct {
	MessageID string    // Provider's message ID for tracking
	SentAt    time.Time // When the send was accepted
}

// Sender is the interface for sending emails via an external provider.
// Delivery is best-effort from the workflow's point of view: a failed
// send never reverses a ledger transition.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
