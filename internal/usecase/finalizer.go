package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"vochat/internal/domain"
	"vochat/internal/ports"
)

// DeliveryConfig controls what happens to a finalized transcript.
type DeliveryConfig struct {
	Mode           domain.DeliveryMode
	ProfileID      string
	RefineAttempts int
	RefineBackoff  time.Duration
}

type deliveryOutcome struct {
	result  domain.StopResult
	reason  domain.SessionStateReason
	message string
	err     error
}

type transcriptFinalizer struct {
	cfg        DeliveryConfig
	refiner    ports.Refiner
	normalizer ports.Normalizer
	inserter   ports.Inserter
	logger     zerolog.Logger
}

func newTranscriptFinalizer(
	cfg DeliveryConfig,
	refiner ports.Refiner,
	normalizer ports.Normalizer,
	inserter ports.Inserter,
	logger zerolog.Logger,
) transcriptFinalizer {
	if !cfg.Mode.Valid() {
		cfg.Mode = domain.DeliveryNormalizeThenInsert
	}
	if cfg.RefineAttempts <= 0 {
		cfg.RefineAttempts = 3
	}
	if cfg.RefineBackoff <= 0 {
		cfg.RefineBackoff = 250 * time.Millisecond
	}
	return transcriptFinalizer{
		cfg:        cfg,
		refiner:    refiner,
		normalizer: normalizer,
		inserter:   inserter,
		logger:     logger,
	}
}

// Finalize refines (in refine mode), normalizes and inserts raw. Refinement
// failures fall back to the raw transcript; only insertion can fail.
func (f transcriptFinalizer) Finalize(ctx context.Context, clientSessionID string, raw string) deliveryOutcome {
	result := domain.StopResult{ClientSessionID: clientSessionID, RawTranscript: raw}
	reason := domain.SessionReasonTextInserted
	message := "Text inserted"

	text := raw
	if f.cfg.Mode == domain.DeliveryRefineThenInsert && f.refiner != nil {
		refined, err := f.refine(ctx, clientSessionID, raw)
		var quota *domain.QuotaExceededError
		switch {
		case err == nil:
			text = refined
			result.Refined = true
		case errors.As(err, &quota):
			reason = domain.SessionReasonQuotaFallback
			message = fmt.Sprintf("Weekly limit reached (%d/%d words), inserted unrefined text", quota.Used, quota.Limit)
			f.logger.Warn().Int("used", quota.Used).Int("limit", quota.Limit).Msg("refinement quota exhausted; inserting raw transcript")
		default:
			f.logger.Warn().Err(err).Msg("refinement unavailable; inserting raw transcript")
		}
	}

	normalized, err := f.normalizer.Normalize(text)
	if err != nil {
		f.logger.Warn().Err(err).Msg("normalization failed; inserting text unchanged")
		normalized = text
	}
	result.FinalTranscript = normalized

	if err := f.insert(ctx, normalized); err != nil {
		return deliveryOutcome{
			result:  result,
			reason:  domain.SessionReasonInsertionFailed,
			message: "Could not insert text; it is still available in the app",
			err:     err,
		}
	}
	result.Inserted = true
	return deliveryOutcome{result: result, reason: reason, message: message}
}

// refine retries transient failures with the same idempotency key, so the
// server charges a recording at most once however many attempts it takes.
func (f transcriptFinalizer) refine(ctx context.Context, clientSessionID string, raw string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.cfg.RefineBackoff

	req := ports.RefineRequest{
		ClientSessionID: clientSessionID,
		ProfileID:       f.cfg.ProfileID,
		RawText:         raw,
		Mode:            string(f.cfg.Mode),
	}

	attempt := 0
	res, err := backoff.Retry(ctx, func() (ports.RefineResult, error) {
		attempt++
		res, err := f.refiner.Refine(ctx, req)
		if err == nil {
			return res, nil
		}
		switch domain.KindOf(err) {
		case domain.KindQuotaExceeded, domain.KindUnauthorized, domain.KindBadRequest:
			return res, backoff.Permanent(err)
		}
		f.logger.Debug().Err(err).Int("attempt", attempt).Msg("refinement attempt failed")
		return res, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(f.cfg.RefineAttempts)),
	)
	if err != nil {
		return "", err
	}
	if res.RefinedText == "" {
		return "", domain.NewError(domain.KindRefinementUnavailable, "refinement returned empty text", nil)
	}
	return res.RefinedText, nil
}

func (f transcriptFinalizer) insert(ctx context.Context, text string) error {
	if err := f.inserter.WriteClipboard(ctx, text); err != nil {
		return domain.NewError(domain.KindInsertion, "clipboard write failed", err)
	}
	if err := f.inserter.SimulatePaste(ctx); err != nil {
		return domain.NewError(domain.KindInsertion, "paste failed", err)
	}
	return nil
}
