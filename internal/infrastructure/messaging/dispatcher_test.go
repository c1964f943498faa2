package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktab/baho-bot/pkg/clock"
	"github.com/maktab/baho-bot/pkg/logger"
)

// timeline records sends and sleeps in the order they happen.
type timeline struct {
	mu     sync.Mutex
	events []string
	fake   *clock.Fake
}

func newTimeline() *timeline {
	return &timeline{fake: clock.NewFake(time.Date(2025, 3, 3, 18, 0, 0, 0, time.UTC))}
}

func (tl *timeline) add(e string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, e)
}

func (tl *timeline) Now() time.Time { return tl.fake.Now() }

func (tl *timeline) Sleep(ctx context.Context, d time.Duration) error {
	if err := tl.fake.Sleep(ctx, d); err != nil {
		return err
	}
	tl.add("sleep " + d.String())
	return nil
}

func (tl *timeline) sender(fail map[int64]error) Sender {
	return SenderFunc(func(ctx context.Context, chatID int64, text string) error {
		tl.add(fmt.Sprintf("send %d", chatID))
		return fail[chatID]
	})
}

func messages(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		out[i] = Message{ChatID: int64(i + 1), StudentID: fmt.Sprintf("s%d", i+1), Text: "report"}
	}
	return out
}

func testConfig(c clock.Clock) Config {
	return Config{
		MessageDelay: 50 * time.Millisecond,
		BatchSize:    25,
		BatchDelay:   time.Second,
		Logger:       logger.Discard(),
		Clock:        c,
	}
}

func TestDispatch_BatchingDelays(t *testing.T) {
	tl := newTimeline()
	d := NewDispatcher(tl.sender(nil), testConfig(tl))

	res := d.Dispatch(context.Background(), messages(52))

	assert.Equal(t, 52, res.Sent)
	assert.Equal(t, 0, res.Failed)
	assert.Zero(t, res.Skipped)

	sleeps := tl.fake.Sleeps()
	var small, big int
	for _, s := range sleeps {
		switch s {
		case 50 * time.Millisecond:
			small++
		case time.Second:
			big++
		default:
			t.Fatalf("unexpected sleep %s", s)
		}
	}
	assert.Equal(t, 51, small, "small delay between every consecutive pair")
	assert.Equal(t, 2, big, "batch delay after message 25 and 50 only")

	// The batch delays follow sends 25 and 50 directly (after their small delay).
	idx := func(e string) int {
		for i, ev := range tl.events {
			if ev == e {
				return i
			}
		}
		return -1
	}
	assert.Equal(t, "sleep 1s", tl.events[idx("send 25")+2])
	assert.Equal(t, "sleep 1s", tl.events[idx("send 50")+2])
	assert.Equal(t, "send 26", tl.events[idx("send 25")+3])

	// Nothing happens after the last send.
	assert.Equal(t, "send 52", tl.events[len(tl.events)-1])
}

func TestDispatch_LastMessageOnBatchBoundaryHasNoDelay(t *testing.T) {
	tl := newTimeline()
	d := NewDispatcher(tl.sender(nil), testConfig(tl))

	res := d.Dispatch(context.Background(), messages(25))

	assert.Equal(t, 25, res.Sent)
	assert.Len(t, tl.fake.Sleeps(), 24)
	assert.NotContains(t, tl.fake.Sleeps(), time.Second)
}

func TestDispatch_PartialFailureDoesNotAbort(t *testing.T) {
	tl := newTimeline()
	boom := errors.New("Forbidden: bot was blocked by the user")
	d := NewDispatcher(tl.sender(map[int64]error{30: boom}), testConfig(tl))

	res := d.Dispatch(context.Background(), messages(52))

	assert.Equal(t, 51, res.Sent)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, int64(30), res.Failures[0].ChatID)
	assert.Equal(t, "s30", res.Failures[0].StudentID)
	assert.ErrorIs(t, res.Failures[0].Err, boom)

	var sends int
	for _, e := range tl.events {
		if len(e) > 5 && e[:5] == "send " {
			sends++
		}
	}
	assert.Equal(t, 52, sends, "every message is attempted")
}

func TestDispatch_EmptyAndSingle(t *testing.T) {
	tl := newTimeline()
	d := NewDispatcher(tl.sender(nil), testConfig(tl))

	assert.Equal(t, Result{}, d.Dispatch(context.Background(), nil))

	res := d.Dispatch(context.Background(), messages(1))
	assert.Equal(t, 1, res.Sent)
	assert.Empty(t, tl.fake.Sleeps())
}

func TestDispatch_CancelFinishesInFlightMessage(t *testing.T) {
	tl := newTimeline()
	ctx, cancel := context.WithCancel(context.Background())

	var sendCtxErr error
	sender := SenderFunc(func(sctx context.Context, chatID int64, text string) error {
		tl.add(fmt.Sprintf("send %d", chatID))
		if chatID == 3 {
			cancel()
			sendCtxErr = sctx.Err()
		}
		return nil
	})

	res := NewDispatcher(sender, testConfig(tl)).Dispatch(ctx, messages(10))

	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 7, res.Skipped)
	assert.NoError(t, sendCtxErr, "in-flight send is not cancelled")
	assert.Equal(t, "send 3", tl.events[len(tl.events)-1])
}

func TestDispatch_RecoveryMiddleware(t *testing.T) {
	tl := newTimeline()
	sender := SenderFunc(func(ctx context.Context, chatID int64, text string) error {
		if chatID == 2 {
			panic("nil map")
		}
		return nil
	})

	d := NewDispatcher(sender, testConfig(tl), RecoveryMiddleware(logger.Discard()))
	res := d.Dispatch(context.Background(), messages(3))

	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.ErrorContains(t, res.Failures[0].Err, "sender panic")
}

type countingRecorder struct {
	sent, failed, observed int
}

func (r *countingRecorder) MessageSent()                { r.sent++ }
func (r *countingRecorder) MessageFailed()              { r.failed++ }
func (r *countingRecorder) ObserveSend(_ time.Duration) { r.observed++ }

func TestDispatch_MetricsMiddleware(t *testing.T) {
	tl := newTimeline()
	rec := &countingRecorder{}
	d := NewDispatcher(tl.sender(map[int64]error{1: errors.New("timeout")}), testConfig(tl),
		LoggingMiddleware(logger.Discard()),
		MetricsMiddleware(rec),
	)

	d.Dispatch(context.Background(), messages(4))

	assert.Equal(t, 3, rec.sent)
	assert.Equal(t, 1, rec.failed)
	assert.Equal(t, 4, rec.observed)
}
