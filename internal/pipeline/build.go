package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/localsignal/gbp-collector/internal/auth"
	"github.com/localsignal/gbp-collector/internal/config"
	"github.com/localsignal/gbp-collector/internal/gbp"
	"github.com/localsignal/gbp-collector/internal/places"
)

// Setup bundles the shared collaborators and the configured sources.
type Setup struct {
	Tokens  auth.TokenSource
	Lister  Lister
	Sources map[string]Source
}

// FromConfig wires the API clients and every pipeline named in the
// configuration. An unknown pipeline name is a configuration error.
func FromConfig(cfg *config.Collector, logger *slog.Logger) (*Setup, error) {
	tokens := auth.NewRefreshTokenSource(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRefreshToken)

	client := gbp.New(gbp.Config{
		BusinessBase:    cfg.BusinessAPIBase,
		PerformanceBase: cfg.PerformanceAPIBase,
		PageSize:        cfg.PageSize,
	}, tokens, logger)

	ratings := places.New(cfg.PlacesAPIBase, cfg.PlacesAPIKey, logger)
	if !ratings.Enabled() {
		logger.Warn("PLACES_API_KEY not set, ratings will not be collected")
	}

	sources := make(map[string]Source, len(cfg.Pipelines))
	for _, name := range cfg.Pipelines {
		switch name {
		case "impressions":
			sources[name] = NewImpressionsSource(client, cfg.ImpressionsTable, cfg.LookbackDays, cfg.DelayDays)
		case "keywords":
			sources[name] = NewKeywordsSource(client, cfg.KeywordsTable, cfg.MonthsBack)
		case "status":
			sources[name] = NewStatusSource(ratings, cfg.StatusTable, logger)
		default:
			return nil, fmt.Errorf("unknown pipeline %q", name)
		}
	}

	return &Setup{
		Tokens:  tokens,
		Lister:  client,
		Sources: sources,
	}, nil
}
