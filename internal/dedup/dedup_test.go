package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkSeen_OnlyFirstIsNew(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.MarkSeen("<a@example.com>"))
	assert.False(t, tr.MarkSeen("<a@example.com>"))
	assert.True(t, tr.MarkSeen("<b@example.com>"))
	assert.Equal(t, 2, tr.Count())
	assert.True(t, tr.Seen("<a@example.com>"))
	assert.False(t, tr.Seen("<c@example.com>"))
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.MarkSeen("x")
	tr.MarkSeen("y")

	tr.Reset()

	assert.Equal(t, 0, tr.Count())
	assert.True(t, tr.MarkSeen("x"))
}

func TestMarkSeen_ConcurrentCallersAgree(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	newCount := make(map[string]int)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("id-%d", j)
				if tr.MarkSeen(id) {
					mu.Lock()
					newCount[id]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, newCount, 50)
	for id, n := range newCount {
		assert.Equal(t, 1, n, id)
	}
}
