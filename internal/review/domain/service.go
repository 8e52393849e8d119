package domain

import (
	"context"

	formsessiondomain "github.com/pinksky/orderflow/internal/formsession/domain"
)

type Service interface {
	Review(ctx context.Context, sessionID string, req ReviewRequest, actor string) (*formsessiondomain.FormSession, error)
	// HandleSignerWebhook only errors when the event should be redelivered.
	HandleSignerWebhook(ctx context.Context, event SignerEvent) (WebhookResult, error)
	RecreateSigningDocument(ctx context.Context, sessionID string, actor string) (*formsessiondomain.FormSession, error)
}

type Decision string

const (
	DecisionYes Decision = "Yes"
	DecisionNo  Decision = "No"
)

type ReviewRequest struct {
	Status  Decision `json:"status" validate:"required,oneof=Yes No"`
	Comment string   `json:"comment" validate:"max=2000"`
}

type WebhookOutcome string

const (
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookUnmatched WebhookOutcome = "unmatched"
	WebhookSigned    WebhookOutcome = "signed"
	WebhookCompleted WebhookOutcome = "completed"
)

type WebhookResult struct {
	Outcome   WebhookOutcome `json:"outcome"`
	SessionID string         `json:"session_id,omitempty"`
}
