// Package billing holds the subscription domain logic: plans and pricing,
// entitlement derivation, webhook reconciliation, management actions,
// checkout, the daily usage gate and the maintenance jobs.
package billing

import (
	"encoding/json"
	"math"
	"strings"

	"vega/internal/types"
)

// Plan is a purchasable tier.
type Plan string

const (
	PlanPro   Plan = "pro"
	PlanUltra Plan = "ultra"
)

// Currency is the only currency the provider account is configured for.
const Currency = "RUB"

// yearlyThreshold is the commitment, in months, from which the discounted
// yearly price applies.
const yearlyThreshold = 12

// DefaultDuration is the commitment used when the client does not send one.
const DefaultDuration = 12

// PlanPrice is what the provider charges each month for one commitment.
// Amounts are in major units.
type PlanPrice struct {
	Amount      int64
	Description string
}

// planConfig holds the monthly and yearly prices of a plan.
type planConfig struct {
	ProductID string
	Monthly   PlanPrice
	Yearly    PlanPrice
	Public    PublicPlan
}

// PublicPlan is the catalogue entry shown on the pricing page.
type PublicPlan struct {
	ID       Plan     `json:"id"`
	Name     string   `json:"name"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Features []string `json:"features"`
}

// PlanRegistry is the single source of truth for prices and products.
type PlanRegistry interface {
	// Price returns the monthly charge for plan under a commitment of
	// duration months.
	Price(plan Plan, duration int) (PlanPrice, error)

	// ProductID returns the subscription productId stored for plan.
	ProductID(plan Plan) string

	// ResolveProductID maps a paid notification to a product: an explicit
	// plan hint wins, then an amount matching an Ultra price, then Pro.
	ResolveProductID(planHint string, amount float64) string

	// PublicPlans lists the plans in display order.
	PublicPlans() []PublicPlan
}

var planDefaults = map[Plan]planConfig{
	PlanPro: {
		ProductID: types.ProductPro,
		Monthly:   PlanPrice{Amount: 990, Description: "Scira Pro - Месячная подписка"},
		Yearly:    PlanPrice{Amount: 790, Description: "Scira Pro - Годовая подписка (ежемесячное списание)"},
		Public: PublicPlan{
			ID:       PlanPro,
			Name:     "Scira Pro",
			Amount:   990,
			Currency: Currency,
			Features: []string{
				"Безлимитные поисковые запросы",
				"Доступ к премиум моделям ИИ",
				"Приоритетная поддержка",
			},
		},
	},
	PlanUltra: {
		ProductID: types.ProductUltra,
		Monthly:   PlanPrice{Amount: 1990, Description: "Scira Ultra - Месячная подписка"},
		Yearly:    PlanPrice{Amount: 1590, Description: "Scira Ultra - Годовая подписка (ежемесячное списание)"},
		Public: PublicPlan{
			ID:       PlanUltra,
			Name:     "Scira Ultra",
			Amount:   1990,
			Currency: Currency,
			Features: []string{
				"Все возможности Pro",
				"Расширенные инструменты поиска",
				"API доступ",
				"Персональный менеджер",
			},
		},
	},
}

// staticPlanRegistry is the compiled-in PlanRegistry.
type staticPlanRegistry struct {
	plans map[Plan]planConfig
}

// NewStaticPlanRegistry returns the registry with the built-in prices.
func NewStaticPlanRegistry() PlanRegistry {
	return &staticPlanRegistry{plans: planDefaults}
}

// ParsePlan validates a client-supplied plan name. Empty means Pro.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PlanPro, nil
	case PlanPro, PlanUltra:
		return p, nil
	default:
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlan, "Invalid plan type", nil,
			map[string]any{"plan": s})
	}
}

func (r *staticPlanRegistry) Price(plan Plan, duration int) (PlanPrice, error) {
	cfg, ok := r.plans[plan]
	if !ok {
		return PlanPrice{}, types.NewAppError(types.ErrCodeValidationInvalidPlan, "Invalid plan type", nil)
	}
	if duration >= yearlyThreshold {
		return cfg.Yearly, nil
	}
	return cfg.Monthly, nil
}

func (r *staticPlanRegistry) ProductID(plan Plan) string {
	if cfg, ok := r.plans[plan]; ok {
		return cfg.ProductID
	}
	return types.ProductPro
}

func (r *staticPlanRegistry) ResolveProductID(planHint string, amount float64) string {
	if hint := Plan(strings.ToLower(strings.TrimSpace(planHint))); hint != "" {
		if cfg, ok := r.plans[hint]; ok {
			return cfg.ProductID
		}
	}

	ultra := r.plans[PlanUltra]
	rounded := int64(math.Round(amount))
	if rounded == ultra.Monthly.Amount || rounded == ultra.Yearly.Amount {
		return ultra.ProductID
	}
	return types.ProductPro
}

func (r *staticPlanRegistry) PublicPlans() []PublicPlan {
	out := make([]PublicPlan, 0, len(r.plans))
	for _, p := range []Plan{PlanPro, PlanUltra} {
		if cfg, ok := r.plans[p]; ok {
			pub := cfg.Public
			pub.Features = append([]string(nil), pub.Features...)
			out = append(out, pub)
		}
	}
	return out
}

// planHintFromData extracts {"plan": "..."} from the notification's Data
// field. The provider forwards Data either as an object or as a JSON
// encoded string.
func planHintFromData(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Plan
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil && encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &obj); err == nil {
			return obj.Plan
		}
	}
	return ""
}
