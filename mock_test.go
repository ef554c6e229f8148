package sfuclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// MockFunc records calls to the closure returned by Fn so tests can assert on
// listener invocations that happen on other goroutines.
type MockFunc struct {
	require *require.Assertions
	calls   chan []interface{}
	results [][]interface{}
	timeout time.Duration
}

func NewMockFunc(t *testing.T) *MockFunc {
	return &MockFunc{
		require: require.New(t),
		calls:   make(chan []interface{}, 100),
		timeout: 2 * time.Second,
	}
}

func (w *MockFunc) WithTimeout(timeout time.Duration) *MockFunc {
	w.timeout = timeout
	return w
}

func (w *MockFunc) Fn() func(...interface{}) {
	return func(args ...interface{}) {
		w.calls <- args
	}
}

// ExpectCalledWith waits for at least one call and compares the last one.
func (w *MockFunc) ExpectCalledWith(args ...interface{}) {
	w.waitFor(1)
	w.require.NotEmpty(w.results, "fn is not called")

	last := w.results[len(w.results)-1]
	w.require.Len(last, len(args), "fn is called with a different number of arguments")
	for i, arg := range args {
		w.require.EqualValues(arg, last[i])
	}
}

func (w *MockFunc) ExpectCalled(msgAndArgs ...interface{}) {
	w.waitFor(1)
	w.require.NotEmpty(w.results, msgAndArgs...)
}

func (w *MockFunc) ExpectCalledTimes(called int, msgAndArgs ...interface{}) {
	w.waitFor(called)
	w.require.Len(w.results, called, msgAndArgs...)
}

func (w *MockFunc) ExpectNotCalled(msgAndArgs ...interface{}) {
	w.drain()
	w.require.Empty(w.results, msgAndArgs...)
}

// waitFor collects calls until at least n arrived or the timeout passed.
func (w *MockFunc) waitFor(n int) {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for len(w.results) < n {
		select {
		case result := <-w.calls:
			w.results = append(w.results, result)
		case <-timer.C:
			return
		}
	}
	w.drain()
}

// drain collects whatever is buffered without waiting.
func (w *MockFunc) drain() {
	for {
		select {
		case result := <-w.calls:
			w.results = append(w.results, result)
		default:
			return
		}
	}
}
