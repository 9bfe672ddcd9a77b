package presence

import "github.com/bellhopd/bellhop/platform"

// Default scorer weights. The bonuses and penalty are deliberately small
// relative to the weight of one human so the score stays monotonic in human
// count: adding a human always raises a channel's score by more than any
// bonus/penalty swing can lower it.
const (
	DefaultActivityBonus  = 0.1
	DefaultCrowdPenalty   = 0.05
	DefaultCrowdThreshold = 8
)

// Scorer ranks channels by a weighted activity score instead of the plain
// human count. The score is the human count plus a small bonus per actively
// participating occupant (neither muted nor deafened) minus a small penalty
// per occupant beyond CrowdThreshold.
type Scorer struct {
	// ActivityBonus is added per unmuted, undeafened human.
	ActivityBonus float64

	// CrowdPenalty is subtracted per human beyond CrowdThreshold.
	CrowdPenalty float64

	// CrowdThreshold is the occupancy at which the crowding penalty starts.
	CrowdThreshold int
}

// NewScorer returns a Scorer with the default weights.
func NewScorer() *Scorer {
	return &Scorer{
		ActivityBonus:  DefaultActivityBonus,
		CrowdPenalty:   DefaultCrowdPenalty,
		CrowdThreshold: DefaultCrowdThreshold,
	}
}

// Score computes the weighted score for ch given its plain human count.
func (s *Scorer) Score(ch platform.Channel, humanCount int, classifier *Classifier) float64 {
	score := float64(humanCount)

	active := 0
	for _, m := range ch.Members() {
		if classifier.IsHuman(m) && !m.Muted && !m.Deafened {
			active++
		}
	}
	score += float64(active) * s.ActivityBonus

	if s.CrowdThreshold > 0 && humanCount > s.CrowdThreshold {
		score -= float64(humanCount-s.CrowdThreshold) * s.CrowdPenalty
	}

	return score
}
