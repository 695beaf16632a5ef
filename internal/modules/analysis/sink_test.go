package analysis

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records appended messages and can be told to fail.
type fakeStore struct {
	mu       sync.Mutex
	messages []string
	next     int64
	now      time.Time
	err      error
}

func (f *fakeStore) AppendLog(id string, message string) (int64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, time.Time{}, f.err
	}
	f.next++
	f.messages = append(f.messages, message)
	return f.next, f.now, nil
}

func (f *fakeStore) appended() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func TestSinkSplitsChunksIntoLines(t *testing.T) {
	store := &fakeStore{}
	broker := NewBroker(zerolog.Nop())
	sink := NewSink(store, broker, nil, zerolog.Nop())

	require.NoError(t, sink.Write("a1", "first\nsecond\r\n\nthird"))

	assert.Equal(t, []string{"first", "second", "third"}, store.appended())
}

func TestSinkSkipsEmptyChunks(t *testing.T) {
	store := &fakeStore{}
	broker := NewBroker(zerolog.Nop())
	sink := NewSink(store, broker, nil, zerolog.Nop())

	require.NoError(t, sink.Write("a1", ""))
	require.NoError(t, sink.Write("a1", "\n\r\n\n"))

	assert.Empty(t, store.appended())
}

func TestSinkPersistsBeforeForwarding(t *testing.T) {
	store := &fakeStore{}
	broker := NewBroker(zerolog.Nop())
	sink := NewSink(store, broker, nil, zerolog.Nop())

	sub, err := broker.Subscribe("a1", noBacklog)
	require.NoError(t, err)

	require.NoError(t, sink.Write("a1", "hello\nworld"))

	// Forwarded lines carry the sequence assigned by the store.
	line := <-sub.Lines()
	assert.Equal(t, int64(1), line.Sequence)
	assert.Equal(t, "hello", line.Message)

	line = <-sub.Lines()
	assert.Equal(t, int64(2), line.Sequence)
	assert.Equal(t, "world", line.Message)
}

func TestSinkAbandonsDeletedAnalysis(t *testing.T) {
	store := &fakeStore{err: ErrNotFound}
	broker := NewBroker(zerolog.Nop())
	sink := NewSink(store, broker, nil, zerolog.Nop())

	sub, err := broker.Subscribe("a1", noBacklog)
	require.NoError(t, err)

	assert.ErrorIs(t, sink.Write("a1", "too late"), ErrNotFound)

	// Nothing was forwarded.
	select {
	case line := <-sub.Lines():
		t.Fatalf("unexpected line forwarded: %v", line)
	default:
	}
}

func TestSinkPropagatesStorageErrors(t *testing.T) {
	boom := errors.New("disk full")
	store := &fakeStore{err: boom}
	broker := NewBroker(zerolog.Nop())
	sink := NewSink(store, broker, nil, zerolog.Nop())

	assert.ErrorIs(t, sink.Write("a1", "line"), boom)
}

func TestSinkForwardsPersistedTimestamp(t *testing.T) {
	persisted := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	store := &fakeStore{now: persisted}
	broker := NewBroker(zerolog.Nop())
	sink := NewSink(store, broker, nil, zerolog.Nop())

	sub, err := broker.Subscribe("a1", noBacklog)
	require.NoError(t, err)

	require.NoError(t, sink.Write("a1", "hello"))

	line := <-sub.Lines()
	assert.True(t, line.Timestamp.Equal(persisted))
}

func TestSinkConcurrentWritersDeliverInSequenceOrder(t *testing.T) {
	store := &fakeStore{}
	broker := NewBroker(zerolog.Nop())
	sink := NewSink(store, broker, nil, zerolog.Nop())

	sub, err := broker.Subscribe("a1", noBacklog)
	require.NoError(t, err)

	const writers = 4
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, sink.Write("a1", "line"))
			}
		}()
	}
	wg.Wait()

	// Live delivery follows sequence order even with racing writers.
	for i := 1; i <= writers*perWriter; i++ {
		line := <-sub.Lines()
		require.Equal(t, int64(i), line.Sequence)
	}
}
