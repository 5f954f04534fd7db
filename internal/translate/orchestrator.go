package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chatlibre/internal/models"
)

// Attempter performs a single translation attempt against one model.
type Attempter interface {
	Invoke(ctx context.Context, req models.TranslationRequest, candidate models.ModelCandidate) (models.TranslationResult, error)
}

// Orchestrator walks the candidate list in order and applies the fallback
// policy: only decode failures move on to the next model.
type Orchestrator struct {
	candidates []models.ModelCandidate
	attempts   Attempter
	logger     *slog.Logger
}

// New returns an Orchestrator over a copy of candidates.
func New(candidates []models.ModelCandidate, attempts Attempter, logger *slog.Logger) (*Orchestrator, error) {
	if len(candidates) == 0 {
		return nil, errors.New("translate: at least one model candidate is required")
	}
	if attempts == nil {
		return nil, errors.New("translate: attempter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		candidates: append([]models.ModelCandidate(nil), candidates...),
		attempts:   attempts,
		logger:     logger,
	}, nil
}

// Candidates returns a copy of the configured candidate order.
func (o *Orchestrator) Candidates() []models.ModelCandidate {
	return append([]models.ModelCandidate(nil), o.candidates...)
}

// Translate returns the first valid result. Errors wrap ErrTooManyRequests or
// ErrServiceUnavailable.
func (o *Orchestrator) Translate(ctx context.Context, req models.TranslationRequest) (models.TranslationResult, error) {
	if len(req.Texts) == 0 {
		return models.TranslationResult{}, errors.New("translate: empty batch")
	}

	for _, candidate := range o.candidates {
		if err := ctx.Err(); err != nil {
			failure := &Failure{Kind: TransportError, Model: candidate.Name, Err: err}
			return models.TranslationResult{}, fmt.Errorf("%w: %w", ErrServiceUnavailable, failure)
		}

		result, err := o.attempts.Invoke(ctx, req, candidate)
		if err == nil {
			return result, nil
		}

		var failure *Failure
		if !errors.As(err, &failure) {
			failure = classify(candidate.Name, err)
		}

		switch failure.Kind {
		case RateLimited:
			o.logger.WarnContext(ctx, "model rate limited", "model", candidate.Name, "error", failure.Err)
			return models.TranslationResult{}, fmt.Errorf("%w: %w", ErrTooManyRequests, failure)
		case UpstreamError, TransportError:
			o.logger.ErrorContext(ctx, "model call failed", "model", candidate.Name, "kind", failure.Kind.String(), "error", failure.Err)
			return models.TranslationResult{}, fmt.Errorf("%w: %w", ErrServiceUnavailable, failure)
		case DecodeError:
			o.logger.DebugContext(ctx, "model reply rejected", "model", candidate.Name, "error", failure.Err)
			continue
		default:
			return models.TranslationResult{}, fmt.Errorf("%w: unexpected failure kind %s", ErrServiceUnavailable, failure.Kind)
		}
	}

	o.logger.WarnContext(ctx, "all models failed", "models", len(o.candidates), "target", req.Target)
	return models.TranslationResult{}, fmt.Errorf("%w: %w", ErrServiceUnavailable, ErrAllModelsFailed)
}
