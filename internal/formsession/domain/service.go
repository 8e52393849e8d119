package domain

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/pricing"
	"gorm.io/gorm"
)

type Service interface {
	Start(ctx context.Context, req StartRequest) (*FormSession, error)
	UpdateStep(ctx context.Context, id string, step Step, payload json.RawMessage) (*StepResult, error)
	Complete(ctx context.Context, id string) (*FormSession, error)

	MarkCompleted(ctx context.Context, id string, actor string) (*FormSession, error)
	MarkUnfulfilled(ctx context.Context, id string, reason string, actor string) (*FormSession, error)
	MarkRefunded(ctx context.Context, id string, reason string, actor string) (*FormSession, error)
	Cancel(ctx context.Context, id string, reason string, actor string) (*FormSession, error)

	// CreateDirect opens a Pending direct-checkout session and links the
	// existing payment to it inside tx.
	CreateDirect(ctx context.Context, tx *gorm.DB, req DirectRequest) (*FormSession, error)

	Get(ctx context.Context, id string) (*SessionView, error)
	ListActivities(ctx context.Context, id string) ([]Activity, error)
}

type StartRequest struct {
	SourcePath string                 `json:"source_path"`
	Currency   string                 `json:"currency"`
	UserAgent  string                 `json:"-"`
	Location   string                 `json:"location"`
	Contact    *paymentdomain.Contact `json:"contact"`
}

type DirectRequest struct {
	SourcePath string
	Brand      string
	Currency   string
	UserAgent  string
	Answers    IntakeAnswers
	PaymentID  snowflake.ID
}

// StepResult is what a step write returns. Paid short-circuits every money step.
type StepResult struct {
	Session     *FormSession       `json:"session,omitempty"`
	Paid        bool               `json:"paid,omitempty"`
	Breakdown   *pricing.Breakdown `json:"breakdown,omitempty"`
	PaymentID   *snowflake.ID      `json:"payment_id,omitempty"`
	RedirectURL string             `json:"redirect_url,omitempty"`
}
