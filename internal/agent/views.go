package agent

// ViewDecision says how a result set should be presented.
type ViewDecision int

const (
	ViewReportNone ViewDecision = iota // no matches: say so
	ViewInline                         // small: list inline in the reply
	ViewOffer                          // medium: list inline, offer a saved view
	ViewMaterialize                    // large: materialize a filtered view directly
)

// ViewThresholds are the tunable result-count boundaries. They live in
// configuration so presentation policy can change without touching the
// conversation loop.
type ViewThresholds struct {
	InlineMax int `yaml:"inline_max"` // <= InlineMax: inline only
	OfferMax  int `yaml:"offer_max"`  // <= OfferMax: inline plus offer
}

// DefaultViewThresholds matches the documented 0 / 1-3 / 4-5 / 6+ bands.
func DefaultViewThresholds() ViewThresholds {
	return ViewThresholds{InlineMax: 3, OfferMax: 5}
}

// Decide is a pure function of result cardinality.
func (t ViewThresholds) Decide(n int) ViewDecision {
	switch {
	case n <= 0:
		return ViewReportNone
	case n <= t.InlineMax:
		return ViewInline
	case n <= t.OfferMax:
		return ViewOffer
	default:
		return ViewMaterialize
	}
}

func (d ViewDecision) String() string {
	switch d {
	case ViewReportNone:
		return "report_none"
	case ViewInline:
		return "inline"
	case ViewOffer:
		return "inline_offer_view"
	case ViewMaterialize:
		return "materialize_view"
	default:
		return "unknown"
	}
}
