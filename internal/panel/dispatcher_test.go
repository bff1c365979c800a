package panel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aritech2mqtt/internal/ats"
	"aritech2mqtt/internal/log"
)

func testLogger() *log.Logger {
	return log.NewLogger("error")
}

func TestDispatcherSerializesPerEntity(t *testing.T) {
	d := NewDispatcher(testLogger(), time.Second)
	id := EntityID{ats.KindArea, 1}

	var inflight, maxInflight int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := d.Submit(context.Background(), id, func(context.Context) error {
				n := atomic.AddInt32(&inflight, 1)
				for {
					m := atomic.LoadInt32(&maxInflight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inflight, -1)
				return nil
			})
			assert.NoError(t, err)
			assert.Equal(t, ResultAcknowledged, result)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInflight), "two commands in flight for one entity")
}

func TestDispatcherDistinctEntitiesRunConcurrently(t *testing.T) {
	d := NewDispatcher(testLogger(), time.Second)

	release := make(chan struct{})
	started := make(chan struct{})

	go d.Submit(context.Background(), EntityID{ats.KindDoor, 1}, func(context.Context) error {
		close(started)
		<-release
		return nil
	})

	<-started
	done := make(chan struct{})
	go func() {
		d.Submit(context.Background(), EntityID{ats.KindDoor, 2}, func(context.Context) error {
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("command for a different door was blocked")
	}
	close(release)
}

func TestDispatcherTimeout(t *testing.T) {
	d := NewDispatcher(testLogger(), 50*time.Millisecond)

	result, err := d.Submit(context.Background(), EntityID{ats.KindOutput, 1}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, ResultTimedOut, result)
}

func TestResultMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want CommandResult
	}{
		{"acknowledged", nil, ResultAcknowledged},
		{"rejected", &ats.RejectionError{Reason: ats.RejectNotReady}, ResultRejected},
		{"auth denied", &ats.AuthError{Reason: ats.AuthPermissionDenied}, ResultRejected},
		{"timeout", context.DeadlineExceeded, ResultTimedOut},
		{"cancelled", context.Canceled, ResultCancelled},
		{"client closed", ats.ErrClosed, ResultCancelled},
		{"not connected", ats.ErrNotConnected, ResultCancelled},
		{"io failure", errors.New("broken pipe"), ResultTimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultOf(tt.err))
		})
	}
}
