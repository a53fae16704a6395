package testutil

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitFor(t *testing.T) {
	var n atomic.Int32
	assert.True(t, WaitFor(func() bool { return n.Add(1) >= 3 }, time.Second))
	assert.False(t, WaitFor(func() bool { return false }, 30*time.Millisecond))
}

func TestWaitForChannel(t *testing.T) {
	ch := make(chan string, 1)
	ch <- "done"
	v, ok := WaitForChannel(ch, time.Second)
	assert.True(t, ok)
	assert.Equal(t, "done", v)

	v, ok = WaitForChannel(ch, 20*time.Millisecond)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestCollector(t *testing.T) {
	c := NewCollector[int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(i)
		}()
	}

	assert.True(t, c.WaitLen(50, time.Second))
	wg.Wait()
	assert.Len(t, c.Items(), 50)
	assert.False(t, c.WaitLen(51, 20*time.Millisecond))

	AssertEventuallyTrue(t, func() bool { return c.Len() == 50 }, time.Second)
}
