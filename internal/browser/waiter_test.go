package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestWaiter_FinishBeforeWait(t *testing.T) {
	w := NewRequestWaiter()
	w.Finish("https://img.test/1.jpg", &Response{Status: 200, RequestID: "r1"})

	resp, err := w.Wait(context.Background(), "https://img.test/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.RequestID)
}

func TestRequestWaiter_WaitBeforeFinish(t *testing.T) {
	w := NewRequestWaiter()

	got := make(chan *Response, 1)
	go func() {
		resp, err := w.Wait(context.Background(), "https://img.test/2.jpg")
		assert.NoError(t, err)
		got <- resp
	}()

	require.Eventually(t, func() bool { return w.Len() == 1 }, time.Second, time.Millisecond)
	w.Finish("https://img.test/2.jpg", &Response{Status: 200, RequestID: "r2"})

	select {
	case resp := <-got:
		assert.Equal(t, "r2", resp.RequestID)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestRequestWaiter_ChainedWaitersAllReleasedOnce(t *testing.T) {
	w := NewRequestWaiter()
	const n = 5

	var wg sync.WaitGroup
	results := make(chan string, n*2)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := w.Wait(context.Background(), "https://host.test/doc")
			if assert.NoError(t, err) {
				results <- resp.RequestID
			}
		}()
	}

	require.Eventually(t, func() bool { return w.Len() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	w.Finish("https://host.test/doc", &Response{Status: 200, RequestID: "doc"})
	wg.Wait()
	close(results)

	count := 0
	for id := range results {
		assert.Equal(t, "doc", id)
		count++
	}
	assert.Equal(t, n, count)
}

func TestRequestWaiter_OtherURLsDoNotResolve(t *testing.T) {
	w := NewRequestWaiter()
	w.Finish("https://host.test/a", &Response{Status: 200})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.Wait(ctx, "https://host.test/b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestWaiter_ResetDropsFinishedAndReleasesPending(t *testing.T) {
	w := NewRequestWaiter()
	w.Finish("https://host.test/old", &Response{Status: 200})

	errs := make(chan error, 1)
	go func() {
		_, err := w.Wait(context.Background(), "https://host.test/pending")
		errs <- err
	}()
	require.Eventually(t, func() bool { return w.Len() == 2 }, time.Second, time.Millisecond)

	w.Reset()
	assert.Equal(t, 0, w.Len())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrStaleRequest)
	case <-time.After(time.Second):
		t.Fatal("pending waiter not released by reset")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Wait(ctx, "https://host.test/old")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "stale finished entry leaked into the new epoch")
}

func TestRequestWaiter_FinishAfterResetResolvesNewWaiter(t *testing.T) {
	w := NewRequestWaiter()

	go func() {
		_, _ = w.Wait(context.Background(), "https://host.test/doc")
	}()
	require.Eventually(t, func() bool { return w.Len() == 1 }, time.Second, time.Millisecond)
	w.Reset()

	w.Finish("https://host.test/doc", &Response{Status: 503, RequestID: "second"})
	resp, err := w.Wait(context.Background(), "https://host.test/doc")
	require.NoError(t, err)
	assert.Equal(t, 503, resp.Status)
	assert.False(t, resp.OK())
}
