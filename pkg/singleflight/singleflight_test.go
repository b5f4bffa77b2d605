package singleflight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingWorker returns a Worker that blocks until release is closed (or
// cancel fires), then returns result/err.
func blockingWorker(release <-chan struct{}, result any, err error) Worker {
	return func(report ReportFunc, cancel *CancelToken) (any, error) {
		select {
		case <-release:
			return result, err
		case <-cancel.Done():
			return nil, ErrCancelled
		}
	}
}

func immediateWorker(result any, err error) Worker {
	return func(report ReportFunc, cancel *CancelToken) (any, error) {
		return result, err
	}
}

func TestSubmitCacheHitReturnsCachedResult(t *testing.T) {
	c := New[string]()
	ctx := context.Background()

	got, err := c.Submit(ctx, "k", immediateWorker("ok", nil), nil)
	if err != nil || got != "ok" {
		t.Fatalf("first submit = (%v, %v)", got, err)
	}

	got, err = c.Submit(ctx, "k", immediateWorker("should-not-run", nil), nil)
	if err != nil || got != "ok" {
		t.Fatalf("second submit = (%v, %v), want cached \"ok\"", got, err)
	}
}

func TestSubmitCachedErrorIsReraised(t *testing.T) {
	c := New[string]()
	ctx := context.Background()
	wantErr := errors.New("boom")

	_, err := c.Submit(ctx, "k", immediateWorker(nil, wantErr), nil)
	var we *WorkerError
	if !errors.As(err, &we) || !errors.Is(we.Err, wantErr) {
		t.Fatalf("first submit err = %v, want WorkerError(boom)", err)
	}

	_, err = c.Submit(ctx, "k", immediateWorker("should-not-run", nil), nil)
	if !errors.As(err, &we) || !errors.Is(we.Err, wantErr) {
		t.Fatalf("second submit err = %v, want re-raised WorkerError(boom)", err)
	}
}

// L1: two consecutive submits with no intervening different key never start
// a second worker.
func TestL1_JoinsInFlightWorkerInsteadOfStartingSecond(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	var starts int32

	worker := func(report ReportFunc, cancel *CancelToken) (any, error) {
		atomic.AddInt32(&starts, 1)
		<-release
		return "r", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Submit(context.Background(), "k", worker, nil)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&starts) != 1 {
		t.Fatalf("worker started %d times, want 1", starts)
	}
	for i := range results {
		if errs[i] != nil || results[i] != "r" {
			t.Errorf("submit %d = (%v, %v)", i, results[i], errs[i])
		}
	}
}

// P2 + Scenario A: shared progress, all observers see the same sequence and
// terminal outcome.
func TestScenarioA_SharedProgress(t *testing.T) {
	c := New[string]()
	start := make(chan struct{})

	worker := func(report ReportFunc, cancel *CancelToken) (any, error) {
		<-start
		report("load", 25)
		report("build", 75)
		report("done", 100)
		return map[string]string{"obj": "mesh"}, nil
	}

	type observed struct {
		percents []int
		result   any
		err      error
	}
	n := 2
	obs := make([]observed, n)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cb := func(_ string, percent int) {
				mu.Lock()
				obs[i].percents = append(obs[i].percents, percent)
				mu.Unlock()
			}
			result, err := c.Submit(context.Background(), "K", worker, cb)
			mu.Lock()
			obs[i].result, obs[i].err = result, err
			mu.Unlock()
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	for i, o := range obs {
		if o.err != nil {
			t.Errorf("observer %d err = %v", i, o.err)
		}
		if len(o.percents) != 3 || o.percents[0] != 25 || o.percents[1] != 75 || o.percents[2] != 100 {
			t.Errorf("observer %d percents = %v, want [25 75 100]", i, o.percents)
		}
	}
}

// Scenario B / P4: preemption cancels the predecessor and the successor
// completes cleanly; the cache ends holding one COMPLETE entry for K2.
func TestScenarioB_Preemption(t *testing.T) {
	c := New[string]()
	releaseK1 := make(chan struct{}) // never closed in this test; K1 must be cancelled, not finish normally

	resultCh := make(chan struct {
		key    string
		result any
		err    error
	}, 3)

	submit := func(key string, w Worker) {
		result, err := c.Submit(context.Background(), key, w, nil)
		resultCh <- struct {
			key    string
			result any
			err    error
		}{key, result, err}
	}

	go submit("K1", blockingWorker(releaseK1, "k1-result", nil))
	time.Sleep(20 * time.Millisecond)

	k2Worker := immediateWorker("k2-result", nil)
	go submit("K2", k2Worker)

	var got []struct {
		key    string
		result any
		err    error
	}
	for i := 0; i < 2; i++ {
		got = append(got, <-resultCh)
	}

	for _, g := range got {
		switch g.key {
		case "K1":
			if !errors.Is(g.err, ErrCancelled) {
				t.Errorf("K1 submit err = %v, want ErrCancelled", g.err)
			}
		case "K2":
			if g.err != nil || g.result != "k2-result" {
				t.Errorf("K2 submit = (%v, %v), want (k2-result, nil)", g.result, g.err)
			}
		}
	}

	if c.Len() != 1 {
		t.Errorf("cache Len() = %d, want 1", c.Len())
	}
}

// Scenario C / P3: worker error fans out to all joined observers, and a
// late observer gets the cached error immediately.
func TestScenarioC_WorkerErrorFanOut(t *testing.T) {
	c := New[string]()
	start := make(chan struct{})
	wantErr := errors.New("spreadsheet error")

	worker := func(report ReportFunc, cancel *CancelToken) (any, error) {
		<-start
		report("working", 30)
		return nil, wantErr
	}

	n := 3
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Submit(context.Background(), "K", worker, nil)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	for i, err := range errs {
		var we *WorkerError
		if !errors.As(err, &we) || !errors.Is(we.Err, wantErr) {
			t.Errorf("observer %d err = %v, want WorkerError(%v)", i, err, wantErr)
		}
	}

	// A fourth, later observer gets the cached error immediately.
	_, err := c.Submit(context.Background(), "K", immediateWorker("unused", nil), nil)
	var we *WorkerError
	if !errors.As(err, &we) || !errors.Is(we.Err, wantErr) {
		t.Errorf("late observer err = %v, want cached WorkerError(%v)", err, wantErr)
	}
}

// Scenario D: a caller's own ctx cancellation (modeling client disconnect)
// does not cancel the worker; other joined observers still complete.
func TestScenarioD_CallerContextCancelDoesNotCancelWorker(t *testing.T) {
	c := New[string]()
	start := make(chan struct{})

	worker := func(report ReportFunc, cancel *CancelToken) (any, error) {
		<-start
		report("progress", 60)
		report("progress", 100)
		return "done", nil
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	var err1 error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err1 = c.Submit(ctx1, "K", worker, nil)
	}()

	var result2 any
	var err2 error
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		result2, err2 = c.Submit(context.Background(), "K", immediateWorker("should-join", nil), nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel1() // observer 1 "disconnects"
	time.Sleep(10 * time.Millisecond)
	close(start)
	wg.Wait()

	if !errors.Is(err1, context.Canceled) {
		t.Errorf("observer 1 err = %v, want context.Canceled", err1)
	}
	if err2 != nil || result2 != "done" {
		t.Errorf("observer 2 = (%v, %v), want (done, nil)", result2, err2)
	}
	if c.Len() != 1 {
		t.Errorf("cache Len() = %d, want 1 (COMPLETE for K)", c.Len())
	}
}

// Scenario F / P4: a preempted predecessor's later failure never clobbers
// the successor entry.
func TestScenarioF_PreemptedFailureDoesNotClobberSuccessor(t *testing.T) {
	c := New[string]()
	k1Finished := make(chan struct{})

	k1Worker := func(report ReportFunc, cancel *CancelToken) (any, error) {
		<-cancel.Done()
		// Simulate a slow post-cancel shutdown path that itself errors.
		time.Sleep(10 * time.Millisecond)
		close(k1Finished)
		return nil, errors.New("IOError during shutdown")
	}

	go c.Submit(context.Background(), "K1", k1Worker, nil)
	time.Sleep(10 * time.Millisecond)

	result, err := c.Submit(context.Background(), "K2", immediateWorker("k2-ok", nil), nil)
	if err != nil || result != "k2-ok" {
		t.Fatalf("K2 submit = (%v, %v)", result, err)
	}

	<-k1Finished
	time.Sleep(10 * time.Millisecond)

	// The cache must still reflect K2's COMPLETE outcome, not K1's IOError.
	result, err = c.Submit(context.Background(), "K2", immediateWorker("should-not-run", nil), nil)
	if err != nil || result != "k2-ok" {
		t.Fatalf("post-K1-failure submit for K2 = (%v, %v), want cached (k2-ok, nil)", result, err)
	}
}

// P6: a panicking worker is isolated and reported as a WorkerError rather
// than crashing the cache.
func TestPanickingWorkerIsReportedAsWorkerError(t *testing.T) {
	c := New[string]()
	worker := func(report ReportFunc, cancel *CancelToken) (any, error) {
		panic("worker exploded")
	}

	_, err := c.Submit(context.Background(), "K", worker, nil)
	var we *WorkerError
	if !errors.As(err, &we) {
		t.Fatalf("err = %v, want *WorkerError", err)
	}
}

func TestOnHitOnMissCounters(t *testing.T) {
	c := New[string]()
	var hits, misses int32
	c.OnHit = func(string) { atomic.AddInt32(&hits, 1) }
	c.OnMiss = func(string) { atomic.AddInt32(&misses, 1) }

	c.Submit(context.Background(), "K", immediateWorker("a", nil), nil)
	c.Submit(context.Background(), "K", immediateWorker("b", nil), nil)
	c.Submit(context.Background(), "K2", immediateWorker("c", nil), nil)

	if misses != 2 {
		t.Errorf("misses = %d, want 2", misses)
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestConcurrentRapidPreemption(t *testing.T) {
	c := New[string]()
	keys := []string{"K1", "K2", "K1", "K3", "K1"}

	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 10 * time.Millisecond)
			w := func(report ReportFunc, cancel *CancelToken) (any, error) {
				select {
				case <-cancel.Done():
					return nil, ErrCancelled
				case <-time.After(15 * time.Millisecond):
					return fmt.Sprintf("%s-result", k), nil
				}
			}
			c.Submit(context.Background(), k, w, nil)
		}(i, k)
	}
	wg.Wait()

	if c.Len() > 1 {
		t.Errorf("cache Len() = %d, want 0 or 1", c.Len())
	}
}
