package stripe

import "time"

// UnixTime converts a Stripe unix timestamp, returning nil for zero.
func UnixTime(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
