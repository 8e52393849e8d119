package domain

import "github.com/pinksky/orderflow/pkg/apperror"

var (
	ErrSigningFailed        = apperror.External("signing_failed", "failed to send for signing", nil)
	ErrSignerNotConfigured  = apperror.Integrity("signer_not_configured", nil)
	ErrPaymentMissing       = apperror.Integrity("completed_payment_missing", nil)
	ErrNotAwaitingSignature = apperror.Domain("not_awaiting_signature", "order is not waiting for signatures")
	ErrDocumentFailed       = apperror.Integrity("summary_document_failed", nil)
)
