package dispatch

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

const replayCapacity = 10_000

// replayTracker remembers recently handled update ids so a re-delivered
// update can be flagged in logs. It never changes dispatch decisions.
type replayTracker struct {
	seen otter.Cache[int, struct{}]
}

func newReplayTracker(ttl time.Duration) (*replayTracker, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c, err := otter.MustBuilder[int, struct{}](replayCapacity).WithTTL(ttl).Build()
	if err != nil {
		return nil, fmt.Errorf("replay cache: %w", err)
	}
	return &replayTracker{seen: c}, nil
}

func (t *replayTracker) Seen(id int) bool {
	return t.seen.Has(id)
}

func (t *replayTracker) MarkHandled(id int) {
	t.seen.Set(id, struct{}{})
}

func (t *replayTracker) Close() {
	t.seen.Close()
}
