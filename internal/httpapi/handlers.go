package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"vochat/internal/domain"
	"vochat/internal/refine"
)

type handlers struct {
	deps Deps
}

type refineRequest struct {
	ClientSessionID string `json:"clientSessionId"`
	ProfileID       string `json:"profileId"`
	RawText         string `json:"rawText"`
	Mode            string `json:"mode"`
}

type refineResponse struct {
	RefinedText string          `json:"refinedText"`
	Applied     *refine.Applied `json:"applied,omitempty"`
	WordCount   int             `json:"wordCount"`
	Cached      bool            `json:"cached,omitempty"`
}

type tokenRequest struct {
	Provider  string `json:"provider"`
	ProfileID string `json:"profileId"`
}

type tokenLimits struct {
	WeeklyRefineWordsRemaining int  `json:"weeklyRefineWordsRemaining"`
	IsPro                      bool `json:"isPro"`
}

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt"`
	Limits    tokenLimits `json:"limits"`
}

func (h *handlers) refine(w http.ResponseWriter, r *http.Request) {
	var body refineRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.deps.Refiner.Refine(r.Context(), refine.Request{
		AccountID:       AccountFrom(r.Context()),
		ClientSessionID: body.ClientSessionID,
		ProfileID:       body.ProfileID,
		RawText:         body.RawText,
		Mode:            body.Mode,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refineResponse{
		RefinedText: res.RefinedText,
		Applied:     res.Applied,
		WordCount:   res.WordCount,
		Cached:      res.Cached,
	})
}

func (h *handlers) sttToken(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	grant, err := h.deps.Tokens.Issue(r.Context(), AccountFrom(r.Context()), body.Provider)
	switch {
	case err == nil:
	case errors.Is(err, errProviderUnavailable):
		h.deps.Metrics.RecordToken("unconfigured")
		hlog.FromRequest(r).Error().Str("provider", body.Provider).Msg("transcription provider key missing")
		writeError(w, http.StatusInternalServerError, "STT provider not configured")
		return
	default:
		h.deps.Metrics.RecordToken(string(domain.KindOf(err)))
		h.writeDomainError(w, r, err)
		return
	}

	h.deps.Metrics.RecordToken("issued")
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     grant.Token,
		ExpiresAt: grant.ExpiresAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Limits: tokenLimits{
			WeeklyRefineWordsRemaining: grant.Remaining,
			IsPro:                      grant.IsPro,
		},
	})
}

func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store != nil {
		if err := h.deps.Store.Ping(r.Context()); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("store not ready")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// writeDomainError maps classified errors to statuses. Causes stay in the log.
func (h *handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *domain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		writeQuotaError(w, quotaErr.Used, quotaErr.Limit)
		return
	}

	var classified *domain.Error
	hasMessage := errors.As(err, &classified) && classified.Message != ""

	switch domain.KindOf(err) {
	case domain.KindBadRequest:
		msg := "Bad request"
		if hasMessage {
			msg = classified.Message
		}
		writeError(w, http.StatusBadRequest, msg)
	case domain.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case domain.KindRefinementUnavailable:
		hlog.FromRequest(r).Warn().Err(err).Msg("refinement unavailable")
		writeError(w, http.StatusBadGateway, "Refinement unavailable")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
