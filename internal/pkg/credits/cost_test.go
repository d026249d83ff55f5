package credits

import "testing"

func TestCostForImages(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 1, want: 1},
		{in: 2, want: 2},
		{in: 3, want: 3},
		{in: 4, want: 4},
		{in: 0, want: 1},
		{in: -3, want: 1},
		{in: 9, want: 4},
	}

	for _, tt := range tests {
		if got := CostForImages(tt.in); got != tt.want {
			t.Fatalf("CostForImages(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCalculateCostWeighted(t *testing.T) {
	tests := []struct {
		name     string
		settings CostSettings
		want     int
	}{
		{name: "defaults", settings: CostSettings{}, want: 1},
		{name: "two standard images", settings: CostSettings{NumberOfImages: 2}, want: 2},
		{name: "high quality", settings: CostSettings{NumberOfImages: 2, Quality: "high"}, want: 3},
		{name: "ultra complex", settings: CostSettings{NumberOfImages: 1, Quality: "ultra", Complexity: "complex"}, want: 4},
		{name: "simple rounds up", settings: CostSettings{NumberOfImages: 1, Complexity: "simple"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateCost(tt.settings); got != tt.want {
				t.Fatalf("CalculateCost(%+v) = %d, want %d", tt.settings, got, tt.want)
			}
		})
	}
}
