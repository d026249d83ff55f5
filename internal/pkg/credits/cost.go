package credits

import "math"

// CostForImages is the live cost rule: one credit per requested image.
// Counts outside 1..4 are clamped to the request limits.
func CostForImages(numberOfImages int) int {
	if numberOfImages < 1 {
		return 1
	}
	if numberOfImages > 4 {
		return 4
	}
	return numberOfImages
}

// CostSettings parameterizes the weighted cost model.
type CostSettings struct {
	NumberOfImages int
	Quality        string // "standard", "high", "ultra"
	Complexity     string // "simple", "standard", "complex"
}

// CalculateCost is the quality/complexity-weighted cost model. It is not
// used by the live debit path, which charges the flat per-image rule above.
func CalculateCost(settings CostSettings) int {
	baseCost := 1.0

	qualityMultiplier := 1.0
	switch settings.Quality {
	case "high":
		qualityMultiplier = 1.5
	case "ultra":
		qualityMultiplier = 2.5
	}

	complexityMultiplier := 1.0
	switch settings.Complexity {
	case "simple":
		complexityMultiplier = 0.8
	case "complex":
		complexityMultiplier = 1.5
	}

	numberOfImages := settings.NumberOfImages
	if numberOfImages < 1 {
		numberOfImages = 1
	}

	total := baseCost * float64(numberOfImages) * qualityMultiplier * complexityMultiplier
	return int(math.Ceil(total))
}
