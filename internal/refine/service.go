// Package refine implements idempotent, metered transcript refinement.
package refine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"vochat/internal/domain"
	"vochat/internal/observability/metrics"
	"vochat/internal/quota"
	"vochat/internal/store"
)

// Request is one refinement call on behalf of an authenticated account.
type Request struct {
	AccountID       string
	ClientSessionID string
	ProfileID       string
	RawText         string
	Mode            string
}

// Applied echoes the style settings used for a fresh refinement.
type Applied struct {
	Tone       string            `json:"tone"`
	Language   string            `json:"language"`
	Formatting domain.Formatting `json:"formatting"`
}

// Result is the stored output for a request key.
type Result struct {
	RefinedText string
	WordCount   int
	Cached      bool
	Applied     *Applied
}

// ModelRequest is one completion against the language model.
type ModelRequest struct {
	System    string
	Input     string
	MaxTokens int
}

// Model produces refined text.
type Model interface {
	Refine(ctx context.Context, req ModelRequest) (string, error)
}

// Ledger is the persistence the service needs.
type Ledger interface {
	GetRefinement(ctx context.Context, accountID, clientSessionID string) (domain.Refinement, error)
	RecordRefinement(ctx context.Context, ref domain.Refinement, usage domain.UsageEvent) (domain.Refinement, bool, error)
	GetProfile(ctx context.Context, accountID, profileID string) (domain.Profile, error)
	DefaultProfile(ctx context.Context, accountID string) (domain.Profile, error)
}

// QuotaChecker reads an account's weekly allowance.
type QuotaChecker interface {
	Check(ctx context.Context, accountID string) (quota.Decision, error)
}

// UsagePublisher fans out metered usage.
type UsagePublisher interface {
	PublishUsage(ctx context.Context, event domain.UsageEvent) error
}

// Service refines transcripts at most once per (account, client session).
type Service struct {
	ledger    Ledger
	quota     QuotaChecker
	model     Model
	publisher UsagePublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	tracer    trace.Tracer

	group          singleflight.Group
	publishWG      sync.WaitGroup
	publishTimeout time.Duration
	refineTimeout  time.Duration
}

// NewService wires a refinement service. publisher may be nil.
func NewService(ledger Ledger, gate QuotaChecker, model Model, publisher UsagePublisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Service{
		ledger:         ledger,
		quota:          gate,
		model:          model,
		publisher:      publisher,
		metrics:        m,
		logger:         logger,
		tracer:         otel.Tracer("vochat/refine"),
		publishTimeout: 10 * time.Second,
		refineTimeout:  90 * time.Second,
	}
}

// Refine returns the stored refinement for the request key, producing it if
// needed. Concurrent duplicates within this process share one model call.
func (s *Service) Refine(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AccountID) == "" {
		return Result{}, domain.NewError(domain.KindUnauthorized, "Unauthorized", nil)
	}
	if strings.TrimSpace(req.RawText) == "" || strings.TrimSpace(req.ClientSessionID) == "" {
		s.metrics.RecordRefinement(metrics.OutcomeBadRequest, 0)
		return Result{}, domain.NewError(domain.KindBadRequest, "Missing required fields", nil)
	}

	// The shared call is detached from whichever caller started it. Each
	// caller stops waiting only on its own cancellation.
	key := req.AccountID + "\x00" + req.ClientSessionID
	ch := s.group.DoChan(key, func() (any, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refineTimeout)
		defer cancel()
		return s.refine(workCtx, req)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return Result{}, out.Err
		}
		if out.Shared {
			s.logger.Debug().Str("clientSessionId", req.ClientSessionID).Msg("joined in-flight refinement")
		}
		return out.Val.(Result), nil
	}
}

func (s *Service) refine(ctx context.Context, req Request) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "refine.Refine", trace.WithAttributes(
		attribute.String("vochat.account_id", req.AccountID),
		attribute.String("vochat.client_session_id", req.ClientSessionID),
	))
	defer span.End()

	logger := s.logger.With().
		Str("accountId", req.AccountID).
		Str("clientSessionId", req.ClientSessionID).
		Logger()

	existing, err := s.ledger.GetRefinement(ctx, req.AccountID, req.ClientSessionID)
	switch {
	case err == nil && existing.Status == domain.RefinementRefined:
		s.metrics.RecordRefinement(metrics.OutcomeCached, existing.WordCount)
		span.SetAttributes(attribute.Bool("vochat.cached", true))
		return Result{RefinedText: existing.OutputText, WordCount: existing.WordCount, Cached: true}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		s.fail(span, err)
		return Result{}, err
	}

	decision, err := s.quota.Check(ctx, req.AccountID)
	if err != nil {
		s.fail(span, err)
		return Result{}, err
	}
	if err := decision.Err(); err != nil {
		s.metrics.RecordRefinement(metrics.OutcomeQuota, 0)
		logger.Info().Int("used", decision.Used).Int("limit", decision.Limit).Msg("weekly refine limit reached")
		span.SetAttributes(attribute.Bool("vochat.quota_exceeded", true))
		return Result{}, err
	}

	profile, err := s.profile(ctx, req)
	if err != nil {
		s.fail(span, err)
		return Result{}, err
	}

	output, err := s.callModel(ctx, ModelRequest{
		System:    SystemPrompt(profile),
		Input:     req.RawText,
		MaxTokens: MaxOutputTokens,
	})
	if err != nil {
		s.metrics.RecordRefinement(metrics.OutcomeUnavailable, 0)
		logger.Warn().Err(err).Msg("refinement model call failed")
		s.fail(span, err)
		return Result{}, domain.NewError(domain.KindRefinementUnavailable, "Refinement unavailable", err)
	}

	words := CountWords(output)
	now := time.Now().UTC()
	usage := domain.UsageEvent{
		AccountID: req.AccountID,
		EventType: domain.UsageEventRefineWords,
		Quantity:  words,
		CreatedAt: now,
		Meta: map[string]any{
			"profile_id": req.ProfileID,
			"session_id": req.ClientSessionID,
		},
	}
	stored, won, err := s.ledger.RecordRefinement(ctx, domain.Refinement{
		AccountID:       req.AccountID,
		ClientSessionID: req.ClientSessionID,
		Status:          domain.RefinementRefined,
		InputText:       req.RawText,
		OutputText:      output,
		ProfileID:       req.ProfileID,
		WordCount:       words,
		CreatedAt:       now,
	}, usage)
	if err != nil {
		s.metrics.RecordRefinement(metrics.OutcomeError, 0)
		s.fail(span, err)
		return Result{}, err
	}

	if !won {
		s.metrics.RecordRefinement(metrics.OutcomeDuplicate, 0)
		logger.Info().Msg("duplicate refinement resolved to stored output")
		return Result{RefinedText: stored.OutputText, WordCount: stored.WordCount, Cached: true}, nil
	}

	s.metrics.RecordRefinement(metrics.OutcomeRefined, words)
	s.publish(usage)
	logger.Info().Int("words", words).Msg("refinement stored")

	return Result{
		RefinedText: stored.OutputText,
		WordCount:   stored.WordCount,
		Applied: &Applied{
			Tone:       profile.Tone,
			Language:   profile.Language,
			Formatting: profile.Formatting,
		},
	}, nil
}

// profile resolves the explicit profile, else the account default. An
// unknown profile falls back to defaults.
func (s *Service) profile(ctx context.Context, req Request) (domain.Profile, error) {
	var (
		p   domain.Profile
		err error
	)
	if req.ProfileID != "" {
		p, err = s.ledger.GetProfile(ctx, req.AccountID, req.ProfileID)
	} else {
		p, err = s.ledger.DefaultProfile(ctx, req.AccountID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return domain.Profile{}.WithDefaults(), nil
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return p.WithDefaults(), nil
}

func (s *Service) callModel(ctx context.Context, req ModelRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "refine.model")
	defer span.End()

	start := time.Now()
	out, err := s.model.Refine(ctx, req)
	s.metrics.RecordModelLatency(time.Since(start).Seconds())
	if err != nil {
		s.fail(span, err)
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("model returned no text")
	}
	return out, nil
}

func (s *Service) publish(event domain.UsageEvent) {
	if s.publisher == nil {
		return
	}
	s.publishWG.Add(1)
	go func() {
		defer s.publishWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		defer cancel()
		if err := s.publisher.PublishUsage(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("accountId", event.AccountID).Msg("usage event not published")
		}
	}()
}

// Close waits for in-flight usage publishes.
func (s *Service) Close() {
	s.publishWG.Wait()
}

func (s *Service) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
