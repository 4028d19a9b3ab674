// ABOUTME: Tests for the event dedupe cache

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAndMark_FirstSeenIsNotDuplicate(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark("evt1"))
	assert.True(t, c.CheckAndMark("evt1"))
	assert.False(t, c.CheckAndMark("evt2"))
}

func TestCheckAndMark_ExpiredEntryIsNew(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark("evt1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.CheckAndMark("evt1"))
}

func TestCheckAndMark_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.CheckAndMark(fmt.Sprintf("evt%d", i))
	}
	// Adding a fourth evicts evt0.
	c.CheckAndMark("evt3")

	assert.False(t, c.CheckAndMark("evt0"))
	assert.True(t, c.CheckAndMark("evt3"))
}

func TestClose_IsIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
