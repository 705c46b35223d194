package webhook

import (
	"errors"
	"net/http"

	"github.com/LordAkkarin/DeadCodeBot/internal/event"
	"github.com/LordAkkarin/DeadCodeBot/internal/metrics"
	"github.com/LordAkkarin/DeadCodeBot/internal/verify"
)

// handleGitHub handles POST deliveries signed with X-Hub-Signature.
func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	provider := string(event.SourceHost)
	logger := s.requestLogger(r, provider, deliveryID(r))

	if err := s.enabled(event.SourceHost); err != nil {
		logger.Debug("request for disabled provider")
		respondText(w, http.StatusNotFound, bodyNotFound)
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		s.respondBodyError(w, logger, err)
		return
	}

	if err := s.github.Verify(body, r.Header.Get(HeaderSignature)); err != nil {
		s.metrics.Webhook(provider, metrics.OutcomeUnauthorized)
		if errors.Is(err, verify.ErrMissingCredential) {
			logger.Warn("webhook signature missing", "header", HeaderSignature)
			respondText(w, http.StatusForbidden, bodyNoSignature)
			return
		}
		logger.Warn("webhook signature verification failed", "error", err)
		respondText(w, http.StatusForbidden, bodyInvalidSignature)
		return
	}

	ev, err := event.Decode(event.SourceHost, r.Header.Get(HeaderGitHubEvent), body)
	if err != nil {
		s.metrics.Webhook(provider, metrics.OutcomeMalformed)
		if errors.Is(err, event.ErrMissingKind) {
			logger.Warn("webhook event name missing", "header", HeaderGitHubEvent)
			respondText(w, http.StatusBadRequest, bodyMissingEvent)
			return
		}
		logMalformed(logger, err)
		respondText(w, http.StatusBadRequest, bodyInvalidData)
		return
	}

	if status, msg := s.relay(ev, logger); status != 0 {
		respondText(w, status, msg)
		return
	}
	respondText(w, http.StatusOK, bodyOK)
}
