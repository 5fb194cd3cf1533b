package util

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	out := Map([]int{1, 2, 3}, func(i int, index uint64) string {
		return strconv.Itoa(i) + ":" + strconv.FormatUint(index, 10)
	})
	assert.Equal(t, []string{"1:0", "2:1", "3:2"}, out)
	assert.Empty(t, Map([]int{}, func(i int, _ uint64) int { return i }))
}

func TestMapErr(t *testing.T) {
	out, err := MapErr([]string{"1", "2"}, func(s string, _ uint64) (int, error) {
		return strconv.Atoi(s)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out)

	out, err = MapErr([]string{"1", "x"}, func(s string, _ uint64) (int, error) {
		return strconv.Atoi(s)
	})
	assert.Error(t, err)
	assert.Nil(t, out)
}

func TestLazy_GetMemoizes(t *testing.T) {
	var l Lazy[int]
	calls := 0
	init := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}

	v, err := l.Get(context.Background(), init)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = l.Get(context.Background(), init)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestLazy_FailureDoesNotPoison(t *testing.T) {
	var l Lazy[string]
	_, err := l.Get(context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	})
	require.Error(t, err)

	_, ok := l.Peek()
	assert.False(t, ok)

	v, err := l.Get(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestLazy_ConcurrentCallersShareOneInit(t *testing.T) {
	var l Lazy[int]
	var calls atomic.Int32
	release := make(chan struct{})

	init := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Get(context.Background(), init)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// let the goroutines pile up behind the first init
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 7, r)
	}
}

func TestLazy_RefreshReplacesValue(t *testing.T) {
	var l Lazy[int]
	n := 0
	init := func(ctx context.Context) (int, error) {
		n++
		return n, nil
	}

	v, err := l.Get(context.Background(), init)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = l.Refresh(context.Background(), init)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	cached, ok := l.Peek()
	assert.True(t, ok)
	assert.Equal(t, 2, cached)
}

func TestLazy_RefreshFailureLeavesCellEmpty(t *testing.T) {
	var l Lazy[int]
	_, err := l.Get(context.Background(), func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	_, err = l.Refresh(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("nonce fetch failed")
	})
	require.Error(t, err)

	_, ok := l.Peek()
	assert.False(t, ok)
}

func TestLazy_ResetDiscardsInFlightResult(t *testing.T) {
	var l Lazy[int]
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan int)
	go func() {
		v, _ := l.Get(context.Background(), func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- v
	}()

	<-started
	l.Reset()
	close(release)

	assert.Equal(t, 1, <-done)
	_, ok := l.Peek()
	assert.False(t, ok)
}

func TestLazy_NilInterfaceValue(t *testing.T) {
	var l Lazy[error]
	v, err := l.Get(context.Background(), func(ctx context.Context) (error, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, v)
}
