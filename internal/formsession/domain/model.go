package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending              Status = "Pending"
	StatusProcessing           Status = "Processing"
	StatusAwaitingReview       Status = "AwaitingReview"
	StatusAwaitingConfirmation Status = "AwaitingConfirmation"
	StatusCompleted            Status = "Completed"
	StatusDeclined             Status = "Declined"
	StatusCancelled            Status = "Cancelled"
	StatusRefunded             Status = "Refunded"
	StatusUnfulfilled          Status = "Unfulfilled"
)

type BookingType string

const (
	BookingTypeForm   BookingType = "form"
	BookingTypeDirect BookingType = "direct"
)

// Metadata is the persisted intake bag. Raw holds every answer given so far.
type Metadata struct {
	UserAgent string        `json:"user_agent,omitempty"`
	Location  string        `json:"location,omitempty"`
	Raw       IntakeAnswers `json:"raw"`
}

type FormSession struct {
	ID          snowflake.ID                 `json:"id" gorm:"primaryKey"`
	Reference   string                       `json:"reference" gorm:"type:text;not null;uniqueIndex:ux_form_sessions_reference"`
	Status      Status                       `json:"status" gorm:"type:text;not null;index"`
	BookingType BookingType                  `json:"booking_type" gorm:"type:text;not null"`
	Brand       string                       `json:"brand" gorm:"type:text;not null"`
	Currency    string                       `json:"currency" gorm:"type:text;not null"`
	SourcePath  string                       `json:"source_path" gorm:"type:text"`
	Metadata    datatypes.JSONType[Metadata] `json:"metadata" gorm:"type:jsonb;not null"`
	PDFPath     *string                      `json:"pdf_path,omitempty" gorm:"column:pdf_path;type:text"`
	DocusealID  *string                      `json:"docuseal_id,omitempty" gorm:"column:docuseal_id;type:text;index"`
	DocusealURL *string                      `json:"docuseal_url,omitempty" gorm:"column:docuseal_url;type:text"`
	Comment     *string                      `json:"comment,omitempty" gorm:"type:text"`
	CreatedAt   time.Time                    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time                    `json:"updated_at" gorm:"not null"`
	DeletedAt   gorm.DeletedAt               `json:"-" gorm:"index"`
}

func (FormSession) TableName() string { return "form_sessions" }

func (s FormSession) Answers() IntakeAnswers {
	return s.Metadata.Data().Raw
}

func (s FormSession) IsDirect() bool {
	return s.BookingType == BookingTypeDirect
}

type ActivityKind string

const (
	ActivitySubmitted   ActivityKind = "Submitted"
	ActivityReviewed    ActivityKind = "Reviewed"
	ActivitySigned      ActivityKind = "Signed"
	ActivityConfirmed   ActivityKind = "Confirmed"
	ActivityRecreate    ActivityKind = "Recreate"
	ActivityUnfulfilled ActivityKind = "Unfulfilled"
	ActivityRefunded    ActivityKind = "Refunded"
	ActivityCancelled   ActivityKind = "Cancelled"
)

const DedupeConfirmed = "confirmed"

// SignedDedupeKey keys a Signed activity by signer role.
func SignedDedupeKey(role string) string {
	return "signed:" + role
}

// Activity is an append-only audit entry. Entries with a DedupeKey are
// unique per session.
type Activity struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	FormSessionID snowflake.ID `json:"form_session_id" gorm:"not null;index;uniqueIndex:ux_form_session_activities_dedupe,priority:1"`
	Kind          ActivityKind `json:"kind" gorm:"type:text;not null"`
	Message       string       `json:"message" gorm:"type:text;not null"`
	UserID        *string      `json:"user_id,omitempty" gorm:"type:text"`
	DedupeKey     *string      `json:"-" gorm:"type:text;uniqueIndex:ux_form_session_activities_dedupe,priority:2"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
}

func (Activity) TableName() string { return "form_session_activities" }

// SessionView is a session together with its completed payment, if any.
type SessionView struct {
	Session          FormSession            `json:"session"`
	CompletedPayment *paymentdomain.Payment `json:"completed_payment,omitempty"`
}
