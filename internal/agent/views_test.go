package agent

import "testing"

func TestViewDecide(t *testing.T) {
	th := DefaultViewThresholds()
	tests := []struct {
		n    int
		want ViewDecision
	}{
		{0, ViewReportNone},
		{-1, ViewReportNone},
		{1, ViewInline},
		{3, ViewInline},
		{4, ViewOffer},
		{5, ViewOffer},
		{6, ViewMaterialize},
		{500, ViewMaterialize},
	}
	for _, tt := range tests {
		if got := th.Decide(tt.n); got != tt.want {
			t.Errorf("Decide(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestViewDecide_CustomThresholds(t *testing.T) {
	th := ViewThresholds{InlineMax: 10, OfferMax: 20}
	if got := th.Decide(10); got != ViewInline {
		t.Errorf("Decide(10) = %v, want inline", got)
	}
	if got := th.Decide(21); got != ViewMaterialize {
		t.Errorf("Decide(21) = %v, want materialize", got)
	}
}
