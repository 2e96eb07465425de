// Package models holds the static AI model catalogue and the pure access
// rules that decide which caller may use which model.
package models

// Category groups models in the picker.
type Category string

const (
	CategoryMini  Category = "Mini"
	CategoryPro   Category = "Pro"
	CategoryUltra Category = "Ultra"
)

// categoryOrder is the display order of ByCategory.
var categoryOrder = []Category{CategoryMini, CategoryPro, CategoryUltra}

// Tier is the paid tier a model requires.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierUltra Tier = "ultra"
)

// DefaultMaxOutputTokens is used for models that do not set a limit and for
// unknown model ids.
const DefaultMaxOutputTokens = 8000

// Descriptor is the static configuration of one model.
type Descriptor struct {
	ID              string   `json:"id"`
	Label           string   `json:"label"`
	Description     string   `json:"description"`
	Category        Category `json:"category"`
	Vision          bool     `json:"vision"`
	Reasoning       bool     `json:"reasoning"`
	PDF             bool     `json:"pdf"`
	Experimental    bool     `json:"experimental"`
	Tier            Tier     `json:"tier"`
	RequiresAuth    bool     `json:"requiresAuth"`
	FreeUnlimited   bool     `json:"freeUnlimited"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
}

// RequiresPro reports whether the model is gated on the Pro tier.
func (d Descriptor) RequiresPro() bool { return d.Tier == TierPro }

// RequiresUltra reports whether the model is gated on the Ultra tier.
func (d Descriptor) RequiresUltra() bool { return d.Tier == TierUltra }
