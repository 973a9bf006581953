package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNextTimestampAdvancesPastLast(t *testing.T) {
	t.Cleanup(func() { atomic.StoreInt64(&lastTimestamp, 0) })

	future := time.Now().Add(time.Second).UnixNano()
	atomic.StoreInt64(&lastTimestamp, future)

	if got := nextTimestamp(); got != future+1 {
		t.Fatalf("expected %d, got %d", future+1, got)
	}
}

func TestNextTimestampUniqueUnderContention(t *testing.T) {
	t.Cleanup(func() { atomic.StoreInt64(&lastTimestamp, 0) })

	const goroutines, perG = 8, 500
	results := make(chan int64, goroutines*perG)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				results <- nextTimestamp()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]struct{}, goroutines*perG)
	for ts := range results {
		if _, dup := seen[ts]; dup {
			t.Fatalf("duplicate timestamp %d", ts)
		}
		seen[ts] = struct{}{}
	}
}
