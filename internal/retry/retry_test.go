package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("dial tcp 10.0.0.1:8545: connection refused")

func fastPolicy(max int) Policy {
	return NewPolicy(max, time.Millisecond, 5*time.Millisecond)
}

func TestDo_SuccessFirstTry(t *testing.T) {
	attempts, err := Do(context.Background(), fastPolicy(3), IsTransient, nil, func(ctx context.Context, attempt int) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(5), IsTransient, nil, func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if calls < 4 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
}

func TestDo_NonRetryable(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(5), IsTransient, nil, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("invalid data")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDo_ExhaustsExactlyMaxAttempts(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(5), IsTransient, nil, func(ctx context.Context, attempt int) error {
		calls++
		return errFlaky
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, 5, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(5, time.Hour, time.Hour)

	calls := 0
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = Do(ctx, p, IsTransient, nil, func(ctx context.Context, attempt int) error {
			calls++
			return errFlaky
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Delay(t *testing.T) {
	p := NewPolicy(10, 100*time.Millisecond, time.Second)

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(9))
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errFlaky, true},
		{errors.New("i/o timeout"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("429 Too Many Requests"), true},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{fmt.Errorf("call: %w", context.Canceled), false},
		{errors.New("execution reverted"), false},
		{errors.New("insufficient funds for gas * price + value"), false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
