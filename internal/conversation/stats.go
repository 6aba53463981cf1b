package conversation

import (
	"sync"
	"time"

	"github.com/h1v3-io/intake/pkg/protocol"
)

// DailyStats tracks the tickets filed on the current calendar day. The day
// rolls over lazily: the first call on a new date clears the list.
type DailyStats struct {
	mu      sync.Mutex
	loc     *time.Location
	now     func() time.Time
	date    string
	tickets []protocol.FiledTicket
}

// NewDailyStats creates stats that count calendar days in loc (UTC when nil).
func NewDailyStats(loc *time.Location, now func() time.Time) *DailyStats {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	d := &DailyStats{loc: loc, now: now}
	d.date = d.today()
	return d
}

// Record adds a filed ticket to today's list.
func (d *DailyStats) Record(t protocol.FiledTicket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollover()
	d.tickets = append(d.tickets, t)
}

// Today returns the current date (YYYY-MM-DD) and a copy of today's tickets.
func (d *DailyStats) Today() (string, []protocol.FiledTicket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollover()
	return d.date, append([]protocol.FiledTicket(nil), d.tickets...)
}

func (d *DailyStats) rollover() {
	if today := d.today(); today != d.date {
		d.date = today
		d.tickets = nil
	}
}

func (d *DailyStats) today() string {
	return d.now().In(d.loc).Format("2006-01-02")
}
