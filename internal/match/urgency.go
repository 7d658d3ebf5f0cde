package match

import (
	"math"
	"time"
)

// Bucket labels how pressing an opportunity's deadline is.
type Bucket string

const (
	BucketUrgent  Bucket = "urgent"
	BucketSoon    Bucket = "soon"
	BucketOngoing Bucket = "ongoing"
)

// BucketOf classifies a deadline relative to now. Days remaining use a
// calendar-day ceiling, so any partial day counts toward the deadline.
// No deadline and expired deadlines both read as ongoing: an opportunity
// whose window already passed has no urgency left to signal.
func BucketOf(deadline *time.Time, now time.Time) Bucket {
	if deadline == nil {
		return BucketOngoing
	}
	daysUntil := int(math.Ceil(deadline.Sub(now).Hours() / 24))
	switch {
	case daysUntil < 0:
		return BucketOngoing
	case daysUntil <= 30:
		return BucketUrgent
	case daysUntil <= 92:
		return BucketSoon
	default:
		return BucketOngoing
	}
}
