package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vochat/internal/domain"
	"vochat/internal/quota"
)

// DefaultTokenTTL is how long an issued transcription token is advertised as valid.
const DefaultTokenTTL = time.Hour

var (
	errUnsupportedProvider = errors.New("unsupported provider")
	errProviderUnavailable = errors.New("provider not configured")
)

// TokenGrant is an issued transcription credential plus the caller's allowance.
type TokenGrant struct {
	Token     string
	ExpiresAt time.Time
	Remaining int
	IsPro     bool
}

// TokenIssuer hands out transcription credentials to accounts with allowance left.
type TokenIssuer struct {
	gate      QuotaChecker
	meter     UsageRecorder
	providers map[string]string
	ttl       time.Duration
	now       func() time.Time
}

// QuotaChecker reads an account's weekly allowance.
type QuotaChecker interface {
	Check(ctx context.Context, accountID string) (quota.Decision, error)
}

// UsageRecorder appends metering rows.
type UsageRecorder interface {
	AppendUsage(ctx context.Context, usage domain.UsageEvent) error
}

// NewTokenIssuer builds an issuer; providers maps provider name to its key.
// meter may be nil.
func NewTokenIssuer(gate QuotaChecker, meter UsageRecorder, providers map[string]string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{gate: gate, meter: meter, providers: providers, ttl: ttl, now: time.Now}
}

// Issue checks the allowance first, then the provider.
func (i *TokenIssuer) Issue(ctx context.Context, accountID, provider string) (TokenGrant, error) {
	decision, err := i.gate.Check(ctx, accountID)
	if err != nil {
		return TokenGrant{}, err
	}
	if err := decision.Err(); err != nil {
		return TokenGrant{}, err
	}

	key, known := i.providers[provider]
	if !known {
		return TokenGrant{}, domain.NewError(domain.KindBadRequest, "Unsupported provider", errUnsupportedProvider)
	}
	if key == "" {
		return TokenGrant{}, errProviderUnavailable
	}

	now := i.now().UTC()
	if i.meter != nil {
		err := i.meter.AppendUsage(ctx, domain.UsageEvent{
			AccountID: accountID,
			EventType: domain.UsageEventSTTToken,
			Quantity:  1,
			CreatedAt: now,
			Meta:      map[string]any{"provider": provider},
		})
		if err != nil {
			return TokenGrant{}, fmt.Errorf("meter token: %w", err)
		}
	}

	return TokenGrant{
		Token:     key,
		ExpiresAt: now.Add(i.ttl),
		Remaining: decision.Remaining,
		IsPro:     decision.Unlimited,
	}, nil
}
