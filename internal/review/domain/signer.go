package domain

import "context"

// Signer is the external e-signature service.
type Signer interface {
	CreateTemplate(ctx context.Context, name string, pdf []byte) (SigningTemplate, error)
	CreateSubmission(ctx context.Context, templateID string, parties []SigningParty) (Submission, error)
}

type SigningTemplate struct {
	TemplateID  string
	DocumentURL string
}

type SigningParty struct {
	Role  string
	Email string
	Name  string
}

// Submission holds the per-role signing links when the service returns them.
type Submission struct {
	ID    string
	Links map[string]string
}

const EventFormCompleted = "form.completed"

// SignerEvent is the webhook body posted by the e-signature service.
type SignerEvent struct {
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      SignerEventData `json:"data"`
}

type SignerEventData struct {
	ID           int64          `json:"id"`
	SubmissionID int64          `json:"submission_id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	Template     SignerTemplate `json:"template"`
}

type SignerTemplate struct {
	ID int64 `json:"id"`
}
