package plans

import (
	"strings"

	"github.com/proshotai/proshot/internal/pkg/env"
)

// Credit allotments per plan period.
const (
	CreditsFree     = 5
	CreditsBasic    = 30
	CreditsStandart = 100
	CreditsPremium  = 500
)

// Plan is one catalog entry of the subscription offering. The catalog is the
// source of truth for "credits out of allotment"; accounts never store their
// allotment themselves.
type Plan struct {
	Name        string
	PriceCents  int
	Description string
	Features    []string
	Credits     int
}

var catalog = []Plan{
	{
		Name:        "Basic",
		PriceCents:  790,
		Description: "Perfekt für Einsteiger",
		Features: []string{
			"30 Generierungen pro Monat",
			"KI-gestützte Bildgenerierung",
			"Hochladen eigener Produktbilder",
			"Referenzbilder für bessere Ergebnisse",
			"Download in hoher Qualität",
		},
		Credits: CreditsBasic,
	},
	{
		Name:        "Standart",
		PriceCents:  1990,
		Description: "Ideal für kleine Unternehmen",
		Features: []string{
			"100 Generierungen pro Monat",
			"Alles in Basic",
			"Prioritäts-Support",
		},
		Credits: CreditsStandart,
	},
	{
		Name:        "Premium",
		PriceCents:  7990,
		Description: "Für professionelle Teams",
		Features: []string{
			"500 Generierungen pro Monat",
			"Alles in Standart",
		},
		Credits: CreditsPremium,
	},
}

// All returns the plan catalog with environment-qualified product names
// ("Basic" in production, "Basic-Test" everywhere else).
func All() []Plan {
	out := make([]Plan, len(catalog))
	for i, p := range catalog {
		p.Name = qualifiedName(p.Name)
		out[i] = p
	}
	return out
}

// ByName resolves a Stripe product name to its catalog entry. Both the plain
// and the environment-qualified name are accepted.
func ByName(name string) (Plan, bool) {
	base := strings.TrimSuffix(strings.TrimSpace(name), "-Test")
	for _, p := range catalog {
		if strings.EqualFold(p.Name, base) {
			p.Name = qualifiedName(p.Name)
			return p, true
		}
	}
	return Plan{}, false
}

// CreditsForProduct returns the credit allotment for a Stripe product name,
// falling back to the free allotment for unknown products.
func CreditsForProduct(name string) int {
	if p, ok := ByName(name); ok {
		return p.Credits
	}
	return CreditsFree
}

func qualifiedName(name string) string {
	if env.IsProduction() {
		return name
	}
	return name + "-Test"
}
