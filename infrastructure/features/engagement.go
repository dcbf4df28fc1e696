package features

import "math"

// EngagementVersion identifies the pinned engagement formula below.
const EngagementVersion = "engagement-v1"

// Pinned engagement weights. They sum to 1 so the score lies in [0, 1].
const (
	engagementWeightPrevious  = 0.40
	engagementWeightRecency   = 0.35
	engagementWeightIntensity = 0.25

	// previousCap saturates the prior-contact term.
	previousCap = 5.0

	// NeverContactedPdays is the sentinel the bank dataset uses for
	// customers with no previous campaign contact.
	NeverContactedPdays = 999.0
)

// EngagementScore combines prior contacts, recency of the last contact, and
// contact intensity of the current campaign into one score in [0, 1]:
//
//	0.40*min(previous,5)/5 + 0.35*recency + 0.25/max(campaign,1)
//
// where recency is 1/(1+pdays), or 0 when pdays is 999 or negative.
func EngagementScore(campaign, pdays, previous float64) float64 {
	prev := math.Min(math.Max(previous, 0), previousCap) / previousCap

	recency := 0.0
	if pdays >= 0 && pdays != NeverContactedPdays {
		recency = 1 / (1 + pdays)
	}

	intensity := 1 / math.Max(campaign, 1)

	return engagementWeightPrevious*prev +
		engagementWeightRecency*recency +
		engagementWeightIntensity*intensity
}
