package model

import "time"

// DayLayout is the wire layout of usage dates.
const DayLayout = "2006-01-02"

// UsageEvent is one dated, valued unit of observed interest in a work.
type UsageEvent struct {
	ID     string
	WorkID string
	Date   string // DayLayout; may be empty or malformed
	Value  int64
	Type   string
}

// UsageBucket is a usage sum for one entity on one day. Day is zero for
// events without a usable date.
type UsageBucket struct {
	Day   time.Time
	Value int64
}

// Dated reports whether the bucket carries a usable date.
func (b UsageBucket) Dated() bool {
	return !b.Day.IsZero()
}

// ParseDay parses a usage date. Missing or malformed dates yield the zero time.
func ParseDay(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Membership links a work to a topic.
type Membership struct {
	WorkID  string
	TopicID string
}
