package service

import (
	"context"
	"fmt"
	"strings"

	"localservices/internal/domain"
	"localservices/internal/models"

	"github.com/rs/zerolog"
)

// Match tiers, most specific first.
const (
	TierCategoryCity = "category_city"
	TierCategory     = "category"
	TierAll          = "all"
)

// ProviderMatcher picks broadcast recipients by category and city equality.
type ProviderMatcher struct {
	directory domain.ProviderDirectory
	logger    *zerolog.Logger
}

func NewProviderMatcher(directory domain.ProviderDirectory, logger *zerolog.Logger) *ProviderMatcher {
	return &ProviderMatcher{directory: directory, logger: logger}
}

// MatchResult is the outcome of FindCandidates.
type MatchResult struct {
	ProviderIDs []string
	Tier        string
}

// FindCandidates tries category+city, then category alone, then every provider.
// City is optional; without it the first tier is skipped.
func (m *ProviderMatcher) FindCandidates(ctx context.Context, category, city string) (*MatchResult, error) {
	category = strings.TrimSpace(category)
	city = strings.TrimSpace(city)

	type tier struct {
		name           string
		category, city string
	}
	tiers := make([]tier, 0, 3)
	if city != "" {
		tiers = append(tiers, tier{TierCategoryCity, category, city})
	}
	tiers = append(tiers, tier{TierCategory, category, ""}, tier{TierAll, "", ""})

	for _, t := range tiers {
		if t.name == TierCategory && category == "" {
			continue
		}
		providers, err := m.directory.FindProviders(ctx, t.category, t.city)
		if err != nil {
			return nil, fmt.Errorf("match providers (%s): %w", t.name, err)
		}
		if len(providers) == 0 {
			continue
		}
		m.logger.Debug().
			Str("category", category).
			Str("city", city).
			Str("tier", t.name).
			Int("candidates", len(providers)).
			Msg("Providers matched")
		return &MatchResult{ProviderIDs: uniqueIDs(providers), Tier: t.name}, nil
	}

	return nil, fmt.Errorf("category %q city %q: %w", category, city, ErrNoProvidersFound)
}

func uniqueIDs(providers []*models.Provider) []string {
	seen := make(map[string]bool, len(providers))
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		ids = append(ids, p.ID)
	}
	return ids
}
