package webhook

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/LordAkkarin/DeadCodeBot/internal/event"
	"github.com/LordAkkarin/DeadCodeBot/internal/metrics"
	"github.com/LordAkkarin/DeadCodeBot/internal/secret"
	"github.com/LordAkkarin/DeadCodeBot/internal/verify"
)

// handleJira handles Atlassian Connect webhook events.
func (s *Server) handleJira(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := string(event.Tracker)
	logger := s.requestLogger(r, provider, deliveryID(r))

	if err := s.enabled(event.Tracker); err != nil {
		logger.Debug("request for disabled provider")
		respondText(w, http.StatusNotFound, bodyNotFound)
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		s.respondBodyError(w, logger, err)
		return
	}

	if err := s.token.Verify(ctx, r.Header.Get(HeaderAuthorization)); err != nil {
		switch {
		case errors.Is(err, verify.ErrMissingCredential):
			s.metrics.Webhook(provider, metrics.OutcomeUnauthorized)
			logger.Warn("authorization header missing")
			respondText(w, http.StatusBadRequest, bodyMissingAuth)
		case errors.Is(err, verify.ErrUnauthorized):
			s.metrics.Webhook(provider, metrics.OutcomeUnauthorized)
			logger.Warn("token verification failed", "error", err)
			respondText(w, http.StatusBadRequest, bodyInvalidSignature)
		default:
			logger.Error("token verification unavailable", "error", err)
			respondText(w, http.StatusInternalServerError, bodyInternal)
		}
		return
	}

	ev, err := event.Decode(event.Tracker, "", body)
	if err != nil {
		s.metrics.Webhook(provider, metrics.OutcomeMalformed)
		logMalformed(logger, err)
		respondText(w, http.StatusBadRequest, bodyInvalidData)
		return
	}

	if status, msg := s.relay(ev, logger); status != 0 {
		respondText(w, status, msg)
		return
	}
	respondText(w, http.StatusNoContent, "")
}

// handleInstallation stores the shared secret from the first installation
// request and rejects every later one.
func (s *Server) handleInstallation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := string(event.Tracker)
	logger := s.requestLogger(r, provider, deliveryID(r))

	if err := s.enabled(event.Tracker); err != nil {
		logger.Debug("installation for disabled provider")
		respondText(w, http.StatusNotFound, bodyNotFound)
		return
	}

	s.installMu.Lock()
	defer s.installMu.Unlock()

	exists, err := s.secrets.Exists(ctx)
	if err != nil {
		logger.Error("failed to check installation state", "error", err)
		respondText(w, http.StatusInternalServerError, bodyInternal)
		return
	}
	if exists {
		s.rejectInstallation(w, logger)
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		s.respondBodyError(w, logger, err)
		return
	}

	inst, err := event.DecodeInstallation(body)
	if err != nil {
		s.metrics.Webhook(provider, metrics.OutcomeMalformed)
		logMalformed(logger, err)
		respondText(w, http.StatusBadRequest, bodyInvalidData)
		return
	}

	if err := s.secrets.PutIfAbsent(ctx, inst.SharedSecret); err != nil {
		if errors.Is(err, secret.ErrAlreadyProvisioned) {
			s.rejectInstallation(w, logger)
			return
		}
		logger.Error("failed to store shared secret", "error", err)
		respondText(w, http.StatusInternalServerError, bodyInternal)
		return
	}

	s.metrics.Webhook(provider, metrics.OutcomeProvisioned)
	logger.Info("atlassian connect installed",
		"client_key", inst.ClientKey,
		"base_url", inst.BaseURL,
		"secret_fingerprint", secret.Fingerprint(inst.SharedSecret),
	)
	respondText(w, http.StatusNoContent, "")
}

func (s *Server) rejectInstallation(w http.ResponseWriter, logger *slog.Logger) {
	s.metrics.Webhook(string(event.Tracker), metrics.OutcomeRejected)
	logger.Warn("installation rejected, shared secret already provisioned")
	respondText(w, http.StatusBadRequest, bodyAlreadyInstalled)
}

func logMalformed(logger *slog.Logger, err error) {
	var mp *event.MalformedPayloadError
	if errors.As(err, &mp) {
		logger.Warn("invalid payload", "reason", mp.Reason, "snippet", mp.Snippet)
		return
	}
	logger.Warn("invalid payload", "error", err)
}
