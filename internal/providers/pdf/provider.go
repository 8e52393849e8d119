package pdf

import "context"

type Provider interface {
	GenerateSessionSummary(ctx context.Context, data SessionSummary) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateSessionSummary(ctx context.Context, data SessionSummary) ([]byte, error) {
	return nil, nil
}
