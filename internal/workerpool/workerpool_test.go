package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := New(4, 16)
	var count int64
	for i := 0; i < 100; i++ {
		p.Submit(func() { atomic.AddInt64(&count, 1) })
	}
	p.Shutdown()
	require.Equal(t, int64(100), count)
}

func TestPoolRunsConcurrently(t *testing.T) {
	p := New(4, 16)
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		p.Submit(func() {
			started <- struct{}{}
			<-release
		})
	}
	for i := 0; i < 4; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("worker did not start concurrently")
		}
	}
	close(release)
	p.Shutdown()
}
