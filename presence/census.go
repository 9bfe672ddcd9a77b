package presence

import (
	"sort"

	"github.com/bellhopd/bellhop/platform"
)

// Census counts human occupants per channel and selects the busiest one.
type Census struct {
	classifier *Classifier

	// ignored holds channel IDs that are never selected.
	ignored map[string]struct{}

	// scorer, when non-nil, ranks channels by weighted score instead of
	// plain human count. The human count returned alongside a selection is
	// always the plain count.
	scorer *Scorer
}

// NewCensus creates a Census using the given classifier. Channels whose ID
// appears in ignoredChannels are skipped by FindBusiest.
func NewCensus(classifier *Classifier, ignoredChannels []string) *Census {
	ignored := make(map[string]struct{}, len(ignoredChannels))
	for _, id := range ignoredChannels {
		if id != "" {
			ignored[id] = struct{}{}
		}
	}
	return &Census{classifier: classifier, ignored: ignored}
}

// SetScorer installs a weighted channel scorer. A nil scorer restores plain
// human-count ranking.
func (c *Census) SetScorer(s *Scorer) {
	c.scorer = s
}

// CountHumans returns the number of human occupants in ch, 0 for nil.
func (c *Census) CountHumans(ch platform.Channel) int {
	if ch == nil {
		return 0
	}
	count := 0
	for _, m := range ch.Members() {
		if c.classifier.IsHuman(m) {
			count++
		}
	}
	return count
}

// FindBusiest returns the channel with the most human occupants and that
// count. Channels are visited in platform order; the first channel reaching
// the maximum wins, so a later channel with an equal count never displaces
// an earlier one. Ignored channels are skipped regardless of occupancy.
// Returns (nil, 0) when no channel holds at least one human.
func (c *Census) FindBusiest(community platform.Community) (platform.Channel, int) {
	var (
		busiest   platform.Channel
		bestCount int
		bestScore float64
	)

	for _, ch := range community.VoiceChannels() {
		if _, skip := c.ignored[ch.ID()]; skip {
			continue
		}
		count := c.CountHumans(ch)
		if count == 0 {
			continue
		}

		if c.scorer == nil {
			if count > bestCount {
				bestCount = count
				busiest = ch
			}
			continue
		}

		score := c.scorer.Score(ch, count, c.classifier)
		if busiest == nil || score > bestScore {
			bestScore = score
			bestCount = count
			busiest = ch
		}
	}

	return busiest, bestCount
}

// ChannelActivity describes one channel's occupancy for a census summary.
type ChannelActivity struct {
	ID      string
	Name    string
	Humans  int
	Total   int
	Ignored bool
}

// CommunitySummary aggregates voice activity across one community.
type CommunitySummary struct {
	TotalChannels  int
	ActiveChannels int
	TotalHumans    int
	Channels       []ChannelActivity
}

// Summary reports per-channel human counts for the community, sorted by
// human count descending. Ignored channels appear in the listing but are
// flagged.
func (c *Census) Summary(community platform.Community) CommunitySummary {
	channels := community.VoiceChannels()
	summary := CommunitySummary{
		TotalChannels: len(channels),
		Channels:      make([]ChannelActivity, 0, len(channels)),
	}

	for _, ch := range channels {
		humans := c.CountHumans(ch)
		_, ignored := c.ignored[ch.ID()]
		summary.Channels = append(summary.Channels, ChannelActivity{
			ID:      ch.ID(),
			Name:    ch.Name(),
			Humans:  humans,
			Total:   len(ch.Members()),
			Ignored: ignored,
		})
		if humans > 0 {
			summary.ActiveChannels++
			summary.TotalHumans += humans
		}
	}

	sort.SliceStable(summary.Channels, func(i, j int) bool {
		return summary.Channels[i].Humans > summary.Channels[j].Humans
	})

	return summary
}
