package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// sleepJob returns its label after sleeping, honouring cancellation
func sleepJob(index int, label string, d time.Duration) *funcJob[string, string] {
	return &funcJob[string, string]{
		index: index,
		item:  label,
		fn: func(ctx context.Context, item string) (string, error) {
			select {
			case <-time.After(d):
				return item, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
}

func TestNewPool_WorkerFloor(t *testing.T) {
	for _, n := range []int{0, -3} {
		if p := NewPool(context.Background(), n); p.workers != 1 {
			t.Errorf("NewPool(%d): expected 1 worker, got %d", n, p.workers)
		}
	}
	if p := NewPool(context.Background(), 6); p.workers != 6 {
		t.Errorf("expected 6 workers, got %d", p.workers)
	}
}

func TestPool_ResultsInSubmissionOrder(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	labels := []string{"go", "kubernetes", "terraform", "postgres", "grpc", "kafka"}
	for i, label := range labels {
		// First submissions sleep longest and finish last
		pool.Submit(sleepJob(i, label, time.Duration(len(labels)-i)*2*time.Millisecond))
	}

	results := pool.Wait()
	if len(results) != len(labels) {
		t.Fatalf("expected %d results, got %d", len(labels), len(results))
	}
	for i, r := range results {
		o := r.(*Outcome[string])
		if o.Value != labels[i] || o.Index != i {
			t.Errorf("result %d: expected %q, got %q (index %d)", i, labels[i], o.Value, o.Index)
		}
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	const workers = 3
	pool := NewPool(context.Background(), workers)
	pool.Start()

	var running, peak int32
	for i := 0; i < 20; i++ {
		pool.Submit(&funcJob[int, int]{
			index: i,
			item:  i,
			fn: func(ctx context.Context, item int) (int, error) {
				now := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return item, nil
			},
		})
	}
	pool.Wait()

	if got := atomic.LoadInt32(&peak); got > workers {
		t.Errorf("peak concurrency %d exceeded %d workers", got, workers)
	}
}

func TestPool_FailureDoesNotAffectOthers(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	boom := errors.New("embedding provider unavailable")
	pool.Submit(&funcJob[string, string]{index: 0, item: "a", fn: func(context.Context, string) (string, error) {
		return "", boom
	}})
	pool.Submit(sleepJob(1, "b", 0))

	results := pool.Wait()
	if !errors.Is(results[0].GetError(), boom) {
		t.Errorf("expected first job to fail with %v, got %v", boom, results[0].GetError())
	}
	if results[1].GetError() != nil {
		t.Errorf("expected second job to succeed, got %v", results[1].GetError())
	}
}

func TestResultCollector_OrderedFillsGaps(t *testing.T) {
	c := NewResultCollector()
	c.Set(2, &Outcome[int]{Index: 2, Value: 20})
	c.Set(0, &Outcome[int]{Index: 0, Value: 0})

	got := c.Ordered(3)
	if got[1] != nil {
		t.Error("expected missing index to be nil")
	}
	if got[2].(*Outcome[int]).Value != 20 {
		t.Errorf("expected index 2 to hold 20, got %v", got[2])
	}
}

func TestPool_SubmitAfterCancelRefused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()
	cancel()
	defer pool.Wait()

	done := make(chan bool, 1)
	go func() { done <- pool.Submit(sleepJob(0, "late", 0)) }()

	select {
	case accepted := <-done:
		if accepted {
			t.Error("expected Submit to refuse the job after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit after cancel blocked")
	}
}

func TestPool_WaitReturnsAfterParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()

	started := make(chan struct{})
	pool.Submit(&funcJob[string, string]{index: 0, item: "slow", fn: func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}})
	<-started
	cancel()

	done := make(chan []Result, 1)
	go func() { done <- pool.Wait() }()

	select {
	case results := <-done:
		if len(results) != 1 || results[0] == nil || !errors.Is(results[0].GetError(), context.Canceled) {
			t.Errorf("expected the in-flight job to report cancellation, got %v", results)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after parent cancel")
	}
}
