package processor

import (
	"fmt"
	"time"
)

// DisplayZone is the default zone of message timestamps.
var DisplayZone = time.FixedZone("UTC+8", 8*60*60)

const stampLayout = "2006-01-02 15:04:05 MST"

func stamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = DisplayZone
	}
	return t.In(loc).Format(stampLayout)
}

func millions(v float64) string {
	return fmt.Sprintf("%.2fM", v/1_000_000)
}
