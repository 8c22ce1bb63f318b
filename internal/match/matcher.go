package match

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/repository"
)

// Match reasons, strongest first. Identifier matches are exact; the rest
// are heuristic.
const (
	ReasonUPC           = "upc"
	ReasonVIN           = "vin"
	ReasonKeyword       = "keyword"
	ReasonBrandCategory = "brand_category"
)

// Candidate pairs one recall with one notification target: either a
// user's registered product or a subscription (user-owned or channel).
type Candidate struct {
	Recall       models.Recall
	UserID       *string
	Product      *models.Product
	Subscription *models.Subscription
	Reason       string
}

type Matcher struct {
	products      repository.ProductRepository
	subscriptions repository.SubscriptionRepository
	logger        zerolog.Logger
}

func NewMatcher(products repository.ProductRepository, subscriptions repository.SubscriptionRepository, logger zerolog.Logger) *Matcher {
	return &Matcher{
		products:      products,
		subscriptions: subscriptions,
		logger:        logger.With().Str("component", "matcher").Logger(),
	}
}

// Match evaluates a batch of recalls against all products and saved
// subscriptions. Matching is stateless: the same batch against the same
// registrations always yields the same candidates. A target is matched at
// most once per recall, strongest reason wins.
func (m *Matcher) Match(ctx context.Context, recalls []models.Recall) ([]Candidate, error) {
	if len(recalls) == 0 {
		return nil, nil
	}

	subs, err := m.subscriptions.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for i := range recalls {
		recall := recalls[i]
		seen := make(map[string]struct{})

		addProduct := func(p models.Product, reason string) {
			key := "p:" + p.ID
			if _, ok := seen[key]; ok {
				return
			}
			seen[key] = struct{}{}
			product := p
			userID := p.UserID
			candidates = append(candidates, Candidate{
				Recall:  recall,
				UserID:  &userID,
				Product: &product,
				Reason:  reason,
			})
		}

		upcMatches, err := m.products.ListByUPCs(ctx, recall.UPCs)
		if err != nil {
			return nil, err
		}
		for _, p := range upcMatches {
			addProduct(p, ReasonUPC)
		}

		vinMatches, err := m.products.ListByVINs(ctx, recall.VINs)
		if err != nil {
			return nil, err
		}
		for _, p := range vinMatches {
			addProduct(p, ReasonVIN)
		}

		for j := range subs {
			sub := subs[j]
			if !subscriptionMatches(&sub, &recall) {
				continue
			}
			key := "s:" + sub.ID
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			subscription := sub
			candidates = append(candidates, Candidate{
				Recall:       recall,
				UserID:       sub.UserID,
				Subscription: &subscription,
				Reason:       ReasonKeyword,
			})
		}

		brandMatches, err := m.products.ListByBrandCategory(ctx, recall.Brand, recall.Category)
		if err != nil {
			return nil, err
		}
		for _, p := range brandMatches {
			addProduct(p, ReasonBrandCategory)
		}
	}

	m.logger.Debug().Int("recalls", len(recalls)).Int("candidates", len(candidates)).Msg("matched batch")
	return candidates, nil
}

func subscriptionMatches(sub *models.Subscription, recall *models.Recall) bool {
	if !sourceInScope(sub.Source, recall.Source) {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(sub.ProductQuery))
	if query == "" {
		return false
	}
	return strings.Contains(strings.ToLower(recall.Product), query) ||
		strings.Contains(strings.ToLower(recall.Brand), query)
}

// sourceInScope treats an empty scope as "all sources" and the bare misc
// scope as covering every scraped site.
func sourceInScope(scope, actual models.Source) bool {
	if scope == "" || scope == actual {
		return true
	}
	return scope == models.SourceMisc && strings.HasPrefix(string(actual), string(models.SourceMisc)+"/")
}
