package domain

import (
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// DayKeyLayout is the bucket key format, a plain calendar date.
	DayKeyLayout   = "2006-01-02"
	dayLabelLayout = "Monday, January 2, 2006"
)

// DayBucket holds the events of one calendar day in the viewer's time zone
type DayBucket struct {
	Date   string        `json:"date"`
	Label  string        `json:"label"`
	Events []ChangeEvent `json:"events"`
}

// Grouper partitions events by local calendar day. The time zone and the clock
// are injected so that output depends only on the arguments.
type Grouper struct {
	loc *time.Location
	now func() time.Time
}

// NewGrouper creates a Grouper. A nil location means time.Local and a nil clock means time.Now.
func NewGrouper(loc *time.Location, now func() time.Time) *Grouper {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Grouper{loc: loc, now: now}
}

// Location returns the viewer time zone used for day boundaries.
func (g *Grouper) Location() *time.Location {
	return g.loc
}

// DayKey returns the bucket key of t.
func (g *Grouper) DayKey(t time.Time) string {
	return t.In(g.loc).Format(DayKeyLayout)
}

// Group partitions events into day buckets. Buckets appear in the order their
// first event appears, and events keep their input order inside a bucket; the
// backend's ordering (usually newest first) is never re-sorted. Events without
// a parseable timestamp are left out of every bucket and returned as errors.
//
// Concatenating the buckets reproduces the input only when the input is ordered
// by OccurredAt. An event whose day already has a bucket joins that bucket, even
// when another day came in between.
func (g *Grouper) Group(events []ChangeEvent) ([]DayBucket, []*InvalidTimestampError) {
	buckets := make([]DayBucket, 0)
	positions := make(map[string]int)
	var invalid []*InvalidTimestampError

	for _, e := range events {
		if e.OccurredAt.IsZero() {
			invalid = append(invalid, &InvalidTimestampError{EventID: e.ID, Raw: e.RawTimestamp})
			continue
		}

		key := g.DayKey(e.OccurredAt)
		i, ok := positions[key]
		if !ok {
			i = len(buckets)
			positions[key] = i
			buckets = append(buckets, DayBucket{Date: key, Label: g.Label(e.OccurredAt)})
		}
		buckets[i].Events = append(buckets[i].Events, e)
	}

	return buckets, invalid
}

// Label names the day of t relative to the injected clock: Today, Yesterday or the full date.
func (g *Grouper) Label(t time.Time) string {
	day := startOfDay(t.In(g.loc))
	today := startOfDay(g.now().In(g.loc))

	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format(dayLabelLayout)
	}
}

// Relative describes t relative to the injected clock, e.g. "3 hours ago".
func (g *Grouper) Relative(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, g.now(), "ago", "from now")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
