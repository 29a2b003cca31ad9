package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/credentials"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

// buildVenues creates one venue per config entry. In paper mode every entry,
// REST ones included, becomes a simulator so no real order can be sent.
// A shared limiter, when present, throttles venues with a rate limit.
func buildVenues(cfg *config.Config, limiter domain.RateLimiter, logger *slog.Logger) ([]domain.Venue, error) {
	paper := strings.EqualFold(cfg.Mode, "paper")
	out := make([]domain.Venue, 0, len(cfg.Venues))

	for _, vc := range cfg.Venues {
		var v domain.Venue
		switch {
		case paper || strings.EqualFold(vc.Kind, "paper"):
			if !strings.EqualFold(vc.Kind, "paper") {
				logger.Info("paper mode: simulating venue", slog.String("venue", vc.Name))
			}
			v = venue.NewPaper(paperConfig(vc))
		default:
			rest, err := restVenue(vc)
			if err != nil {
				return nil, err
			}
			v = rest
		}

		if limiter != nil && vc.RateLimitPerSec > 0 {
			v = venue.NewRateLimited(v, limiter, vc.RateLimitPerSec)
		}
		out = append(out, v)
	}
	return out, nil
}

func paperConfig(vc config.VenueConfig) venue.PaperConfig {
	base := vc.BasePrice
	if base <= 0 {
		base = 1.2
	}
	pc := venue.DefaultPaperConfig(vc.Name, base)
	if len(vc.BasePrices) > 0 {
		pc.BasePrices = vc.BasePrices
	}
	if vc.FeePct > 0 {
		pc.FeePct = vc.FeePct
	}
	if vc.Balance > 0 {
		pc.Balances = map[string]float64{"USD": vc.Balance}
	}
	pc.FillLatency = vc.FillLatency.Duration
	return pc
}

func restVenue(vc config.VenueConfig) (*venue.REST, error) {
	secret, err := credentials.Resolve(vc.APISecret, vc.SecretFile, vc.SecretPassword)
	if err != nil {
		return nil, fmt.Errorf("venue %s: %w", vc.Name, err)
	}
	var signer *credentials.Signer
	if vc.APIKey != "" || secret != "" {
		signer = &credentials.Signer{Key: vc.APIKey, Secret: secret, Passphrase: vc.Passphrase}
	}
	return venue.NewREST(venue.RESTConfig{
		Name:    vc.Name,
		BaseURL: vc.BaseURL,
		Signer:  signer,
	}), nil
}
