package lullaby

import (
	"fmt"
	"time"
)

// FormatDuration renders d as m:ss, truncating to whole seconds. Negative
// durations render as 0:00.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
