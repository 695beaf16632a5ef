package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePipeline delegates to a per-test run function.
type fakePipeline struct {
	run func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error)
}

func (p *fakePipeline) Run(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
	return p.run(ctx, tickers, emit)
}

func newTestService(t *testing.T, pipeline Pipeline) *Service {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	broker := NewBroker(zerolog.Nop())
	sink := NewSink(repo, broker, nil, zerolog.Nop())
	return NewService(repo, broker, sink, pipeline, nil, zerolog.Nop())
}

func waitForStatus(t *testing.T, svc *Service, id string, want Status) *Analysis {
	t.Helper()
	var got *Analysis
	require.Eventually(t, func() bool {
		a, err := svc.Get(id)
		if err != nil {
			return false
		}
		got = a
		return a.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestServiceSubmitRunsToCompletion(t *testing.T) {
	pipeline := &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			emit("researching " + tickers[0])
			emit("done")
			return "all clear", []Recommendation{{Ticker: "GE", Rating: "buy"}}, nil
		},
	}
	svc := newTestService(t, pipeline)

	a, err := svc.Submit([]string{"ge"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)

	got := waitForStatus(t, svc, a.ID, StatusCompleted)
	assert.Equal(t, "all clear", got.Summary)
	require.Len(t, got.Recommendations, 1)
	assert.Equal(t, "GE", got.Recommendations[0].Ticker)

	lines, err := svc.Logs(a.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "researching GE", lines[0].Message)
	assert.Equal(t, int64(1), lines[0].Sequence)
	assert.Equal(t, "done", lines[1].Message)
	assert.Equal(t, int64(2), lines[1].Sequence)
}

func TestServiceSubmitEmptyTickers(t *testing.T) {
	var seen []string
	done := make(chan struct{})
	pipeline := &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			seen = tickers
			close(done)
			return "monitoring", nil, nil
		},
	}
	svc := newTestService(t, pipeline)

	a, err := svc.Submit(nil)
	require.NoError(t, err)

	<-done
	waitForStatus(t, svc, a.ID, StatusCompleted)
	assert.Empty(t, seen)
}

func TestServiceFailurePreservesPartialResult(t *testing.T) {
	pipeline := &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			emit("stage one complete")
			return "partial findings", []Recommendation{{Ticker: "GE", Rating: "hold"}},
				errors.New("stage two failed")
		},
	}
	svc := newTestService(t, pipeline)

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)

	got := waitForStatus(t, svc, a.ID, StatusFailed)
	assert.Equal(t, "partial findings", got.Summary)
	require.Len(t, got.Recommendations, 1)

	lines, err := svc.Logs(a.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestServiceDeleteCancelsRunningPipeline(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	pipeline := &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return "", nil, ctx.Err()
		},
	}
	svc := newTestService(t, pipeline)

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)

	<-started
	require.NoError(t, svc.Delete(a.ID))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline context was not cancelled by delete")
	}

	_, err = svc.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
}

func TestServiceDeleteClosesSubscribers(t *testing.T) {
	block := make(chan struct{})
	pipeline := &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			<-block
			return "", nil, ctx.Err()
		},
	}
	svc := newTestService(t, pipeline)

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)

	sub, err := svc.Subscribe(a.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(a.ID))
	close(block)

	select {
	case _, open := <-sub.Lines():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel was not closed on delete")
	}
}

func TestServiceSubscribeReplaysBacklog(t *testing.T) {
	emitted := make(chan struct{})
	release := make(chan struct{})
	pipeline := &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			emit("early line")
			close(emitted)
			<-release
			emit("late line")
			return "done", nil, nil
		},
	}
	svc := newTestService(t, pipeline)

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)

	<-emitted
	sub, err := svc.Subscribe(a.ID)
	require.NoError(t, err)
	defer sub.Close()

	close(release)

	line := <-sub.Lines()
	assert.Equal(t, "early line", line.Message)
	assert.Equal(t, int64(1), line.Sequence)

	line = <-sub.Lines()
	assert.Equal(t, "late line", line.Message)
	assert.Equal(t, int64(2), line.Sequence)
}

func TestServiceSubscribeBetweenPersistAndForward(t *testing.T) {
	svc := newTestService(t, &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			return "done", nil, nil
		},
	})

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)
	waitForStatus(t, svc, a.ID, StatusCompleted)

	// A line lands in storage, a client subscribes and replays it as
	// backlog, and only then does the live publish for that line go out.
	seq, ts, err := svc.repo.AppendLog(a.ID, "boundary line")
	require.NoError(t, err)

	sub, err := svc.Subscribe(a.ID)
	require.NoError(t, err)
	defer sub.Close()

	svc.broker.Publish(LogLine{AnalysisID: a.ID, Sequence: seq, Message: "boundary line", Timestamp: ts})

	line := <-sub.Lines()
	assert.Equal(t, seq, line.Sequence)
	assert.Equal(t, "boundary line", line.Message)

	select {
	case dup := <-sub.Lines():
		t.Fatalf("sequence %d delivered twice", dup.Sequence)
	default:
	}
}

func TestServiceSubscribeUnknownAnalysis(t *testing.T) {
	svc := newTestService(t, &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			return "", nil, nil
		},
	})

	_, err := svc.Subscribe("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceShutdownWaitsForPipelines(t *testing.T) {
	release := make(chan struct{})
	pipeline := &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			<-release
			return "done", nil, nil
		},
	}
	svc := newTestService(t, pipeline)

	_, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)

	// Still running: shutdown must time out.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	assert.ErrorIs(t, svc.Shutdown(shortCtx), context.DeadlineExceeded)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
}
