package plans

import "testing"

func TestByName(t *testing.T) {
	tests := []struct {
		in          string
		wantCredits int
		wantOK      bool
	}{
		{in: "Basic", wantCredits: 30, wantOK: true},
		{in: "Basic-Test", wantCredits: 30, wantOK: true},
		{in: "standart", wantCredits: 100, wantOK: true},
		{in: "Premium", wantCredits: 500, wantOK: true},
		{in: "Enterprise", wantOK: false},
		{in: "", wantOK: false},
	}

	for _, tt := range tests {
		p, ok := ByName(tt.in)
		if ok != tt.wantOK {
			t.Fatalf("ByName(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
		if ok && p.Credits != tt.wantCredits {
			t.Fatalf("ByName(%q) credits = %d, want %d", tt.in, p.Credits, tt.wantCredits)
		}
	}
}

func TestCreditsForProductFallsBackToFree(t *testing.T) {
	if got := CreditsForProduct("does-not-exist"); got != CreditsFree {
		t.Fatalf("CreditsForProduct fallback = %d, want %d", got, CreditsFree)
	}
}

func TestAllKeepsCatalogOrder(t *testing.T) {
	all := All()
	if len(all) != 3 {
		t.Fatalf("expected 3 catalog plans, got %d", len(all))
	}
	if all[0].Credits >= all[1].Credits || all[1].Credits >= all[2].Credits {
		t.Fatalf("expected catalog ordered by ascending allotment")
	}
}
