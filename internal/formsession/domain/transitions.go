package domain

var transitions = map[Status][]Status{
	StatusPending:              {StatusProcessing},
	StatusProcessing:           {StatusAwaitingReview, StatusCompleted, StatusCancelled, StatusRefunded, StatusUnfulfilled},
	StatusAwaitingReview:       {StatusAwaitingConfirmation, StatusDeclined},
	StatusAwaitingConfirmation: {StatusCompleted},
	StatusCompleted:            {StatusUnfulfilled, StatusRefunded},
}

// CanTransition reports whether from -> to is allowed. Processing goes
// straight to Completed only for direct orders.
func CanTransition(from, to Status, booking BookingType) bool {
	if from == StatusProcessing && to == StatusCompleted && booking != BookingTypeDirect {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition is CanTransition as an error.
func CheckTransition(from, to Status, booking BookingType) error {
	if !CanTransition(from, to, booking) {
		return ErrInvalidTransition
	}
	return nil
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusCancelled, StatusRefunded, StatusUnfulfilled:
		return true
	}
	return false
}

// AcceptsSteps reports whether intake steps may still be written.
func (s Status) AcceptsSteps() bool {
	return s == StatusPending || s == StatusProcessing
}

// ReviewReadiness explains why a session in s cannot be reviewed.
func ReviewReadiness(s Status) error {
	switch s {
	case StatusAwaitingReview:
		return nil
	case StatusPending, StatusProcessing:
		return ErrNotReadyForReview
	case StatusAwaitingConfirmation, StatusCompleted, StatusDeclined:
		return ErrAlreadyReviewed
	default:
		return ErrSessionClosed
	}
}
