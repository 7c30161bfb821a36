package credential

import (
	"sort"
	"sync"
	"time"

	"feed_relay/internal/metrics"
)

const dayLayout = "2006-01-02"

// Blocklist holds credentials throttled by upstream for the current
// calendar day in a fixed timezone. A new day starts with an empty set.
type Blocklist struct {
	mu  sync.Mutex
	loc *time.Location
	now func() time.Time
	day string
	ids map[string]struct{}
}

func NewBlocklist(loc *time.Location) *Blocklist {
	if loc == nil {
		loc = time.UTC
	}
	return &Blocklist{
		loc: loc,
		now: time.Now,
		ids: make(map[string]struct{}),
	}
}

// Day returns the blocklist key for the current moment.
func (b *Blocklist) Day() string {
	return b.now().In(b.loc).Format(dayLayout)
}

// rollover must be called with mu held.
func (b *Blocklist) rollover() {
	today := b.Day()
	if today != b.day {
		b.day = today
		b.ids = make(map[string]struct{})
	}
}

func (b *Blocklist) Add(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	b.ids[id] = struct{}{}
	metrics.BlockedCredentials.Set(float64(len(b.ids)))
}

func (b *Blocklist) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	delete(b.ids, id)
	metrics.BlockedCredentials.Set(float64(len(b.ids)))
}

func (b *Blocklist) Contains(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	_, ok := b.ids[id]
	return ok
}

// IDs returns today's blocked credential ids in sorted order.
func (b *Blocklist) IDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	ids := make([]string, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
