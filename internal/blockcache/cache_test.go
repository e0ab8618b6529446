// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package blockcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(b []byte, calls *int) func() ([]byte, error) {
	return func() ([]byte, error) {
		*calls++
		return b, nil
	}
}

func TestCache_HitAfterMiss(t *testing.T) {
	c, err := New(Config{MaxEntries: 4})
	require.NoError(t, err)

	calls := 0
	b, err := c.GetOrDecode(1, constant([]byte("one"), &calls))
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))

	b, err = c.GetOrDecode(1, constant([]byte("other"), &calls))
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))
	assert.Equal(t, 1, calls)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Decodes)
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, int64(3), s.Bytes)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []uint64
	c, err := New(Config{
		MaxEntries: 2,
		OnEvict:    func(id uint64, _ int) { evicted = append(evicted, id) },
	})
	require.NoError(t, err)

	calls := 0
	const a, b, cc = 10, 20, 30
	for _, id := range []uint64{a, b, a, cc} {
		_, err := c.GetOrDecode(id, constant([]byte{byte(id)}, &calls))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, calls)
	assert.Equal(t, []uint64{b}, evicted)
	assert.Equal(t, []uint64{a, cc}, c.Keys())
	assert.False(t, c.Contains(b))

	// b has to be decoded again
	_, err = c.GetOrDecode(b, constant([]byte{b}, &calls))
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []uint64{b, a}, evicted)
	assert.Equal(t, uint64(2), c.Stats().Evictions)
}

func TestCache_ByteBound(t *testing.T) {
	c, err := New(Config{MaxBytes: 10})
	require.NoError(t, err)

	calls := 0
	_, err = c.GetOrDecode(1, constant(make([]byte, 4), &calls))
	require.NoError(t, err)
	_, err = c.GetOrDecode(2, constant(make([]byte, 4), &calls))
	require.NoError(t, err)
	assert.Equal(t, int64(8), c.Bytes())

	_, err = c.GetOrDecode(3, constant(make([]byte, 4), &calls))
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, c.Keys())
	assert.Equal(t, int64(8), c.Bytes())

	evictions := c.Stats().Evictions

	// too big to keep, but the caller still gets it and nothing
	// resident is pushed out to make room
	big, err := c.GetOrDecode(4, constant(make([]byte, 11), &calls))
	require.NoError(t, err)
	assert.Len(t, big, 11)
	assert.Equal(t, []uint64{2, 3}, c.Keys())
	assert.Equal(t, int64(8), c.Bytes())
	assert.Equal(t, evictions, c.Stats().Evictions)

	// and it is decoded again next time
	_, err = c.GetOrDecode(4, constant(make([]byte, 11), &calls))
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c, err := New(Config{MaxEntries: 2})
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	fail := func() ([]byte, error) {
		calls++
		return nil, boom
	}

	_, err = c.GetOrDecode(7, fail)
	assert.ErrorIs(t, err, boom)
	_, err = c.GetOrDecode(7, fail)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Len())

	b, err := c.GetOrDecode(7, constant([]byte("ok"), &calls))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
}

func TestCache_SingleDecodeUnderContention(t *testing.T) {
	c, err := New(Config{MaxEntries: 1})
	require.NoError(t, err)

	const workers = 32
	var decodes atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	decode := func() ([]byte, error) {
		if decodes.Add(1) == 1 {
			close(started)
		}
		<-release
		return []byte("payload"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, workers)
	errs := make([]error, workers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.GetOrDecode(5, decode)
	}()
	<-started

	for i := 1; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrDecode(5, decode)
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), decodes.Load())
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "payload", string(results[i]))
	}
	s := c.Stats()
	assert.Equal(t, uint64(1), s.Decodes)
	assert.Equal(t, uint64(workers), s.Hits+s.Misses)
}

func TestCache_ConcurrentDistinctKeys(t *testing.T) {
	c, err := New(Config{MaxEntries: 3})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := uint64(i % 8)
			b, err := c.GetOrDecode(id, func() ([]byte, error) {
				return []byte{byte(id)}, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, []byte{byte(id)}, b)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 3)
}

func TestCache_Purge(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)

	calls := 0
	for id := uint64(0); id < 5; id++ {
		_, err := c.GetOrDecode(id, constant([]byte("x"), &calls))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, c.Len())

	c.Purge()
	s := c.Stats()
	assert.Equal(t, 0, s.Entries)
	assert.Equal(t, int64(0), s.Bytes)
	assert.Equal(t, uint64(0), s.Evictions)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{MaxEntries: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Config{MaxBytes: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
