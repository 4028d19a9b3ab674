// Package dedupe provides event deduplication using a time-based cache so a
// redelivered platform event is handled exactly once within its window.
package dedupe
