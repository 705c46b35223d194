package webhook

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/LordAkkarin/DeadCodeBot/internal/event"
	"github.com/LordAkkarin/DeadCodeBot/internal/format"
	"github.com/LordAkkarin/DeadCodeBot/internal/irc"
	"github.com/LordAkkarin/DeadCodeBot/internal/metrics"
)

// relay formats ev and sends the line to the configured channel. It returns
// the status to answer with on failure, or 0 when the request succeeded.
func (s *Server) relay(ev event.Verified, logger *slog.Logger) (int, string) {
	provider := string(ev.Provider)
	text, ok := format.Format(ev)
	if !ok {
		logger.Debug("event kind not relayed", "kind", ev.Kind)
		s.metrics.Webhook(provider, metrics.OutcomeIgnored)
		return 0, ""
	}

	if err := s.sender.Send(s.config.Channel, text); err != nil {
		s.metrics.Webhook(provider, metrics.OutcomeUndelivered)
		if errors.Is(err, irc.ErrNotConnected) {
			logger.Warn("event dropped, irc not connected", "kind", ev.Kind, "channel", s.config.Channel)
			return http.StatusServiceUnavailable, bodyNotConnected
		}
		logger.Error("failed to send notification", "kind", ev.Kind, "channel", s.config.Channel, "error", err)
		return http.StatusInternalServerError, bodyInternal
	}

	s.metrics.Webhook(provider, metrics.OutcomeRelayed)
	s.metrics.Sent()
	logger.Info("event relayed", "kind", ev.Kind, "channel", s.config.Channel)
	return 0, ""
}

// enabled guards a provider's routes.
func (s *Server) enabled(provider event.Provider) error {
	switch provider {
	case event.SourceHost:
		if s.config.GitHub.Enabled {
			return nil
		}
	case event.Tracker:
		if s.config.AtlassianConnect.Enabled {
			return nil
		}
	}
	return ErrFeatureDisabled
}
