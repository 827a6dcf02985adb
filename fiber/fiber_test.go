package fiber

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runUntilIdle(t *testing.T, s *Scheduler, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("scheduler did not stop in time")
	}
}

func TestFibersRunToCompletion(t *testing.T) {
	s := New(0)
	var mu sync.Mutex
	var order []string

	s.Spawn("a", func(ctx *Context) {
		mu.Lock()
		order = append(order, "a1")
		mu.Unlock()
		ctx.Yield()
		mu.Lock()
		order = append(order, "a2")
		mu.Unlock()
	})
	s.Spawn("b", func(ctx *Context) {
		mu.Lock()
		order = append(order, "b1")
		mu.Unlock()
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Stop()
	}()
	runUntilIdle(t, s, time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a1", "a2", "b1"}, order)
}

func TestWaitMsDelaysResumption(t *testing.T) {
	s := New(0)
	start := time.Now()
	var elapsed time.Duration

	s.Spawn("waiter", func(ctx *Context) {
		ctx.WaitMs(30)
		elapsed = time.Since(start)
	})

	go func() {
		time.Sleep(200 * time.Millisecond)
		s.Stop()
	}()
	runUntilIdle(t, s, time.Second)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestAwaitIOResumesOnCompletion(t *testing.T) {
	s := New(0)
	ioDone := make(chan struct{})
	resumed := make(chan struct{})

	s.Spawn("io-waiter", func(ctx *Context) {
		require.True(t, ctx.AwaitIO(ioDone))
		close(resumed)
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(ioDone)
	}()
	go func() {
		time.Sleep(200 * time.Millisecond)
		s.Stop()
	}()
	runUntilIdle(t, s, time.Second)

	select {
	case <-resumed:
	default:
		t.Fatal("fiber never resumed after IO completion")
	}
}

func TestTerminateCausesYieldToReturnFalse(t *testing.T) {
	s := New(0)
	var sawTerminated bool
	var f *Fiber

	f = s.Spawn("terminable", func(ctx *Context) {
		for ctx.Yield() {
		}
		sawTerminated = true
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Terminate()
		time.Sleep(10 * time.Millisecond)
		s.Stop()
	}()
	runUntilIdle(t, s, time.Second)

	assert.True(t, sawTerminated)
}

func TestSpawnFromWithinFiberBody(t *testing.T) {
	s := New(0)
	childRan := make(chan struct{})

	s.Spawn("parent", func(ctx *Context) {
		s.Spawn("child", func(ctx *Context) {
			close(childRan)
		})
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.Stop()
	}()
	runUntilIdle(t, s, time.Second)

	select {
	case <-childRan:
	default:
		t.Fatal("child fiber never ran")
	}
}
