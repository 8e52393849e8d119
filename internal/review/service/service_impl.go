package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/config"
	formsessiondomain "github.com/pinksky/orderflow/internal/formsession/domain"
	notificationdomain "github.com/pinksky/orderflow/internal/notification/domain"
	"github.com/pinksky/orderflow/internal/observability/metrics"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/providers/pdf"
	"github.com/pinksky/orderflow/internal/review/domain"
	"github.com/pinksky/orderflow/pkg/apperror"
	"github.com/pinksky/orderflow/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSignerTimeout = 15 * time.Second

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Sessions formsessiondomain.Repository
	Payments paymentdomain.Service
	PDF      pdf.Provider
	Signer   domain.Signer               `optional:"true"`
	Notifier notificationdomain.Notifier `optional:"true"`
	Metrics  *metrics.OrderMetrics       `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.SignerConfig
	sessions formsessiondomain.Repository
	payments paymentdomain.Service
	pdf      pdf.Provider
	signer   domain.Signer
	notifier notificationdomain.Notifier
	metrics  *metrics.OrderMetrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notificationdomain.Noop{}
	}
	cfg := p.Config.Signer
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSignerTimeout
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("review.service"),
		genID:    p.GenID,
		clock:    c,
		cfg:      cfg,
		sessions: p.Sessions,
		payments: p.Payments,
		pdf:      p.PDF,
		signer:   p.Signer,
		notifier: notifier,
		metrics:  p.Metrics,
	}
}

func (s *Service) Review(ctx context.Context, rawID string, req domain.ReviewRequest, actor string) (*formsessiondomain.FormSession, error) {
	if err := validation.Struct("invalid_review", "", req); err != nil {
		return nil, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := formsessiondomain.ReviewReadiness(session.Status); err != nil {
		return nil, err
	}
	payment, err := s.payments.CompletedPayment(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperror.Wrap(domain.ErrPaymentMissing, errors.New("reviewed order has no successful payment"))
	}

	comment := strings.TrimSpace(req.Comment)
	if req.Status == domain.DecisionYes {
		return s.approve(ctx, session, payment, comment, actor)
	}
	return s.decline(ctx, session, payment, comment, actor)
}

func (s *Service) approve(
	ctx context.Context,
	session *formsessiondomain.FormSession,
	payment *paymentdomain.Payment,
	comment string,
	actor string,
) (*formsessiondomain.FormSession, error) {
	signed, err := s.sendForSigning(ctx, session, payment.ID, comment)
	if err != nil {
		return nil, err
	}

	updated, err := s.move(ctx, session.ID, formsessiondomain.StatusAwaitingConfirmation, func(tx *gorm.DB, current *formsessiondomain.FormSession) (map[string]any, error) {
		if err := s.sessions.RecordActivity(ctx, tx, s.activity(current.ID, formsessiondomain.ActivityReviewed, reviewMessage("approved", comment), actor)); err != nil {
			return nil, err
		}
		return map[string]any{
			"docuseal_id":  signed.template.TemplateID,
			"docuseal_url": signed.template.DocumentURL,
			"comment":      nullable(comment),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, recipient(updated), notificationdomain.EventSentForSigning, payload(updated, map[string]any{
		"signing_url": signed.customerLink(s.cfg.CustomerRole),
	}))
	return updated, nil
}

func (s *Service) decline(
	ctx context.Context,
	session *formsessiondomain.FormSession,
	payment *paymentdomain.Payment,
	comment string,
	actor string,
) (*formsessiondomain.FormSession, error) {
	if err := s.payments.RefundAtGateway(ctx, payment); err != nil {
		return nil, err
	}

	updated, err := s.move(ctx, session.ID, formsessiondomain.StatusDeclined, func(tx *gorm.DB, current *formsessiondomain.FormSession) (map[string]any, error) {
		if err := s.payments.MarkRefunded(ctx, tx, payment.ID); err != nil {
			return nil, err
		}
		if err := s.sessions.RecordActivity(ctx, tx, s.activity(current.ID, formsessiondomain.ActivityReviewed, reviewMessage("declined", comment), actor)); err != nil {
			return nil, err
		}
		return map[string]any{"comment": nullable(comment)}, nil
	})
	if err != nil {
		s.log.Error("gateway refund issued but decline was not recorded",
			zap.String("session_id", session.ID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.notifier.Notify(ctx, recipient(updated), notificationdomain.EventOrderDeclined, payload(updated, map[string]any{
		"comment": comment,
	}))
	return updated, nil
}

func (s *Service) RecreateSigningDocument(ctx context.Context, rawID string, actor string) (*formsessiondomain.FormSession, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != formsessiondomain.StatusAwaitingConfirmation {
		return nil, domain.ErrNotAwaitingSignature
	}
	payment, err := s.payments.CompletedPayment(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperror.Wrap(domain.ErrPaymentMissing, errors.New("order awaiting signatures has no successful payment"))
	}

	comment := ""
	if session.Comment != nil {
		comment = *session.Comment
	}
	signed, err := s.sendForSigning(ctx, session, payment.ID, comment)
	if err != nil {
		return nil, err
	}

	var updated *formsessiondomain.FormSession
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.sessions.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return formsessiondomain.ErrSessionNotFound
		}
		if current.Status != formsessiondomain.StatusAwaitingConfirmation {
			return domain.ErrNotAwaitingSignature
		}
		if err := s.sessions.Update(ctx, tx, id, map[string]any{
			"docuseal_id":  signed.template.TemplateID,
			"docuseal_url": signed.template.DocumentURL,
		}); err != nil {
			return err
		}
		if err := s.sessions.RecordActivity(ctx, tx, s.activity(id, formsessiondomain.ActivityRecreate, "signing document recreated", actor)); err != nil {
			return err
		}
		updated, err = s.sessions.FindByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("signing document recreated",
		zap.String("session_id", id.String()),
		zap.String("template_id", signed.template.TemplateID),
	)
	s.notifier.Notify(ctx, recipient(updated), notificationdomain.EventSentForSigning, payload(updated, map[string]any{
		"signing_url": signed.customerLink(s.cfg.CustomerRole),
	}))
	return updated, nil
}

func (s *Service) HandleSignerWebhook(ctx context.Context, event domain.SignerEvent) (domain.WebhookResult, error) {
	log := s.log.With(zap.String("event_type", event.EventType), zap.Int64("template_id", event.Data.Template.ID))
	if event.EventType != domain.EventFormCompleted {
		log.Debug("signer event ignored")
		return domain.WebhookResult{Outcome: domain.WebhookIgnored}, nil
	}
	if event.Data.Template.ID == 0 {
		log.Warn("signer event without template id")
		return domain.WebhookResult{Outcome: domain.WebhookUnmatched}, nil
	}

	session, err := s.sessions.FindByDocusealID(ctx, s.db, strconv.FormatInt(event.Data.Template.ID, 10))
	if err != nil {
		return domain.WebhookResult{}, err
	}
	if session == nil {
		log.Warn("signer event for unknown document")
		return domain.WebhookResult{Outcome: domain.WebhookUnmatched}, nil
	}
	result := domain.WebhookResult{Outcome: domain.WebhookSigned, SessionID: session.ID.String()}
	log = log.With(zap.String("session_id", session.ID.String()), zap.String("role", event.Data.Role))

	role := strings.TrimSpace(event.Data.Role)
	signedActivity := s.dedupedActivity(session.ID, formsessiondomain.ActivitySigned, role+" signed", event.Data.Email, formsessiondomain.SignedDedupeKey(role))
	if _, err := s.sessions.EnsureActivity(ctx, s.db, signedActivity); err != nil {
		return domain.WebhookResult{}, err
	}

	if !strings.EqualFold(role, s.cfg.ApproverRole) {
		log.Info("signature recorded")
		return result, nil
	}

	payment, err := s.payments.CompletedPayment(ctx, nil, session.ID)
	if err != nil {
		return domain.WebhookResult{}, err
	}
	if payment == nil {
		log.Error("approver signed an order without a successful payment",
			zap.Error(apperror.Wrap(domain.ErrPaymentMissing, errors.New("cannot complete order"))))
		return result, nil
	}

	var updated *formsessiondomain.FormSession
	var from formsessiondomain.Status
	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.sessions.FindByIDForUpdate(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return formsessiondomain.ErrSessionNotFound
		}
		switch current.Status {
		case formsessiondomain.StatusCompleted:
		case formsessiondomain.StatusAwaitingConfirmation:
			moved, err := s.sessions.UpdateStatusIf(ctx, tx, current.ID, current.Status, formsessiondomain.StatusCompleted, nil)
			if err != nil {
				return err
			}
			if !moved {
				return formsessiondomain.ErrInvalidTransition
			}
			from = current.Status
		default:
			return formsessiondomain.ErrInvalidTransition
		}

		created, err = s.sessions.EnsureActivity(ctx, tx, s.dedupedActivity(current.ID, formsessiondomain.ActivityConfirmed,
			"order confirmed", event.Data.Email, formsessiondomain.DedupeConfirmed))
		if err != nil {
			return err
		}
		updated, err = s.sessions.FindByID(ctx, tx, current.ID)
		return err
	})
	if errors.Is(err, formsessiondomain.ErrInvalidTransition) {
		log.Warn("approver signature for an order that is not awaiting confirmation", zap.String("status", string(session.Status)))
		return result, nil
	}
	if err != nil {
		return domain.WebhookResult{}, err
	}

	result.Outcome = domain.WebhookCompleted
	if from != "" {
		s.metrics.RecordTransition(string(from), string(formsessiondomain.StatusCompleted))
		log.Info("order completed by approver signature")
	}
	if created {
		p := payload(updated, nil)
		s.notifier.Notify(ctx, recipient(updated), notificationdomain.EventOrderCompleted, p)
		s.notifier.NotifyAdmins(ctx, notificationdomain.EventOrderCompleted, p)
	}
	return result, nil
}

type signingResult struct {
	template   domain.SigningTemplate
	submission domain.Submission
}

func (r signingResult) customerLink(role string) string {
	if link := r.submission.Links[role]; link != "" {
		return link
	}
	return r.template.DocumentURL
}

// sendForSigning renders the summary and creates the template and submission.
// Nothing is persisted here.
func (s *Service) sendForSigning(ctx context.Context, session *formsessiondomain.FormSession, paymentID snowflake.ID, comment string) (signingResult, error) {
	if s.signer == nil {
		return signingResult{}, domain.ErrSignerNotConfigured
	}
	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return signingResult{}, err
	}
	document, err := s.pdf.GenerateSessionSummary(ctx, sessionSummary(session, payment, comment))
	if err != nil {
		return signingResult{}, apperror.Wrap(domain.ErrDocumentFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	template, err := s.signer.CreateTemplate(callCtx, session.Reference, document)
	if err != nil {
		s.metrics.RecordExternalError("signer", "create_template")
		s.log.Error("signer template failed", zap.String("session_id", session.ID.String()), zap.Error(err))
		return signingResult{}, apperror.Wrap(domain.ErrSigningFailed, err)
	}

	contact := session.Answers().ContactOrZero()
	submission, err := s.signer.CreateSubmission(callCtx, template.TemplateID, []domain.SigningParty{
		{Role: s.cfg.CustomerRole, Email: contact.Email, Name: contact.FullName()},
		{Role: s.cfg.ApproverRole, Email: s.cfg.ApproverEmail},
	})
	if err != nil {
		s.metrics.RecordExternalError("signer", "create_submission")
		s.log.Error("signer submission failed", zap.String("session_id", session.ID.String()), zap.Error(err))
		return signingResult{}, apperror.Wrap(domain.ErrSigningFailed, err)
	}
	return signingResult{template: template, submission: submission}, nil
}

// move re-checks readiness under the row lock and performs the review transition.
func (s *Service) move(
	ctx context.Context,
	id snowflake.ID,
	to formsessiondomain.Status,
	fn func(tx *gorm.DB, current *formsessiondomain.FormSession) (map[string]any, error),
) (*formsessiondomain.FormSession, error) {
	var updated *formsessiondomain.FormSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.sessions.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return formsessiondomain.ErrSessionNotFound
		}
		if err := formsessiondomain.ReviewReadiness(current.Status); err != nil {
			return err
		}
		fields, err := fn(tx, current)
		if err != nil {
			return err
		}
		moved, err := s.sessions.UpdateStatusIf(ctx, tx, id, current.Status, to, fields)
		if err != nil {
			return err
		}
		if !moved {
			return formsessiondomain.ErrAlreadyReviewed
		}
		updated, err = s.sessions.FindByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(string(formsessiondomain.StatusAwaitingReview), string(to))
	s.log.Info("order reviewed", zap.String("session_id", id.String()), zap.String("status", string(to)))
	return updated, nil
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*formsessiondomain.FormSession, error) {
	session, err := s.sessions.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, formsessiondomain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) activity(sessionID snowflake.ID, kind formsessiondomain.ActivityKind, message, actor string) *formsessiondomain.Activity {
	a := &formsessiondomain.Activity{
		ID:            s.genID.Generate(),
		FormSessionID: sessionID,
		Kind:          kind,
		Message:       message,
		CreatedAt:     s.clock.Now(),
	}
	if actor = strings.TrimSpace(actor); actor != "" {
		a.UserID = &actor
	}
	return a
}

func (s *Service) dedupedActivity(sessionID snowflake.ID, kind formsessiondomain.ActivityKind, message, actor, key string) *formsessiondomain.Activity {
	a := s.activity(sessionID, kind, message, actor)
	a.DedupeKey = &key
	return a
}

func reviewMessage(decision, comment string) string {
	if comment == "" {
		return decision
	}
	return decision + ": " + comment
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func payload(session *formsessiondomain.FormSession, extra map[string]any) notificationdomain.Payload {
	p := notificationdomain.Payload{
		"order_id":        session.ID.String(),
		"order_reference": session.Reference,
		"brand":           session.Brand,
		"status":          string(session.Status),
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func recipient(session *formsessiondomain.FormSession) notificationdomain.Recipient {
	c := session.Answers().ContactOrZero()
	return notificationdomain.Recipient{Email: c.Email, Name: c.FullName()}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, formsessiondomain.ErrInvalidID
	}
	return id, nil
}
