package plans

import (
	"strings"

	"github.com/proshotai/proshot/internal/pkg/env"
)

// CreditPackage is a one-time credit purchase, independent of any
// subscription. Bought credits add to the balance instead of resetting it.
type CreditPackage struct {
	Name       string
	Credits    int
	PriceCents int
}

var packages = []CreditPackage{
	{Name: "Basic", Credits: 10, PriceCents: 999},
	{Name: "Standard", Credits: 50, PriceCents: 3999},
	{Name: "Premium", Credits: 150, PriceCents: 9999},
}

// Packages returns the one-time credit package catalog.
func Packages() []CreditPackage {
	out := make([]CreditPackage, len(packages))
	copy(out, packages)
	return out
}

// PackageByName resolves a credit package by its catalog name.
func PackageByName(name string) (CreditPackage, bool) {
	for _, p := range packages {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return CreditPackage{}, false
}

// PriceID returns the Stripe price for a subscription plan, configured per
// environment (STRIPE_PRICE_BASIC, STRIPE_PRICE_STANDART, STRIPE_PRICE_PREMIUM).
func (p Plan) PriceID() string {
	base := strings.TrimSuffix(p.Name, "-Test")
	return env.GetEnv("STRIPE_PRICE_"+strings.ToUpper(base), "")
}
