package proto

import (
	"time"
)

// TimestampNow returns the current unix time truncated to packet precision.
func TimestampNow() uint32 {
	return uint32(time.Now().Unix())
}

// FormatTimestamp renders a packet timestamp for display.
func FormatTimestamp(timestamp uint32) string {
	return time.Unix(int64(timestamp), 0).Format("2006-01-02 15:04:05")
}
