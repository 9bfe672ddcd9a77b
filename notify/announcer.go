package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bellhopd/bellhop/logger"
	"github.com/bellhopd/bellhop/platform"
)

// Announcer defaults.
const (
	DefaultWorkers       = 2
	DefaultQueueSize     = 64
	DefaultMinInterval   = 2 * time.Second
	DefaultAnnounceBurst = 3
)

// AnnouncerConfig configures the announcement pipeline.
type AnnouncerConfig struct {
	// Workers is the number of synthesis workers.
	Workers int

	// QueueSize bounds the pending announcement queue. A full queue drops
	// new announcements rather than blocking the event path.
	QueueSize int

	// MinInterval is the per-community floor between announcements.
	MinInterval time.Duration

	// Burst is how many announcements a community may make back to back.
	Burst int

	// Templates are the announcement texts.
	Templates Templates
}

func (c *AnnouncerConfig) defaults() {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.Burst == 0 {
		c.Burst = DefaultAnnounceBurst
	}
	if c.Templates == (Templates{}) {
		c.Templates = DefaultTemplates()
	}
}

// announcement is one queued notification.
type announcement struct {
	community platform.Community
	text      string
}

// Announcer renders membership changes into speech and plays them, keeping
// synthesis and playback off the event path. Announcements are rate limited
// per community and dropped, not queued, past the limit.
type Announcer struct {
	cfg    AnnouncerConfig
	synth  *Synthesizer
	player *Player

	jobs chan announcement

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewAnnouncer creates an announcement pipeline.
func NewAnnouncer(cfg AnnouncerConfig, synth *Synthesizer, player *Player) *Announcer {
	cfg.defaults()
	return &Announcer{
		cfg:      cfg,
		synth:    synth,
		player:   player,
		jobs:     make(chan announcement, cfg.QueueSize),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Start launches the synthesis workers.
func (a *Announcer) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < a.cfg.Workers; i++ {
		a.group.Go(func() error {
			a.work(ctx)
			return nil
		})
	}
}

// Stop drains the workers. Queued announcements are discarded.
func (a *Announcer) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.group != nil {
		_ = a.group.Wait()
	}
}

// Announce queues a spoken notification for a membership change. It never
// blocks: past the queue or the rate limit the announcement is dropped.
func (a *Announcer) Announce(change *platform.MembershipChange) {
	text, ok := a.cfg.Templates.Render(*change)
	if !ok {
		return
	}

	if !a.limiter(change.Community.ID()).Allow() {
		logger.Debug("announcement rate limited",
			"community", change.Community.Name(), "member", change.Member.DisplayName)
		return
	}

	select {
	case a.jobs <- announcement{community: change.Community, text: text}:
	default:
		logger.Warn("announcement queue full, dropping",
			"community", change.Community.Name())
	}
}

func (a *Announcer) limiter(communityID string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	lim, ok := a.limiters[communityID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(a.cfg.MinInterval), a.cfg.Burst)
		a.limiters[communityID] = lim
	}
	return lim
}

func (a *Announcer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-a.jobs:
			path, err := a.synth.Speech(ctx, job.text)
			if err != nil {
				// Synthesis trouble never touches presence; the agent
				// simply stays silent for this event.
				continue
			}
			a.player.Play(ctx, job.community, path)
		}
	}
}
