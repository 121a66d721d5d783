package billing

import (
	"fmt"

	"github.com/mediastudio/studio-billing/pkg/models"
)

var tierDescriptions = map[models.Tier]struct {
	description string
	features    []string
}{
	models.TierFree: {
		description: "Try the studio tools",
		features:    []string{"Real estate, automotive and lipsync studios", "Standard queue"},
	},
	models.TierStarter: {
		description: "For individual creators",
		features:    []string{"All studio tools", "HD exports", "Email support"},
	},
	models.TierPro: {
		description: "For agencies and busy listings teams",
		features:    []string{"All studio tools", "4K exports", "Priority queue", "Priority support"},
	},
	models.TierEnterprise: {
		description: "For dealer groups and brokerages",
		features:    []string{"All studio tools", "4K exports", "Priority queue", "Dedicated support", "Custom style presets"},
	},
}

// GetPricing returns pricing information for all tiers. Credit amounts come
// from the same allowance table the webhook transitions use.
func GetPricing() *models.PricingResponse {
	tiers := make([]models.PricingTier, 0, len(models.Tiers))
	for _, tier := range models.Tiers {
		info := tierDescriptions[tier]
		features := append([]string{fmt.Sprintf("%d credits per month", tier.Allowance())}, info.features...)
		tiers = append(tiers, models.PricingTier{
			Name:           string(tier),
			MonthlyCredits: tier.Allowance(),
			Description:    info.description,
			Features:       features,
		})
	}
	return &models.PricingResponse{Tiers: tiers}
}
