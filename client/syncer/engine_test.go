package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
)

const quiet = 30 * time.Millisecond

type fakeTransport struct {
	mutex   sync.Mutex
	sent    []progress.Record
	fail    map[string]error // by task id
	block   chan struct{}    // when set, Upsert waits for it to be closed
	started chan struct{}
}

func (tr *fakeTransport) Upsert(ctx context.Context, rec progress.Record) error {
	if tr.started != nil {
		select {
		case tr.started <- struct{}{}:
		default:
		}
	}
	if tr.block != nil {
		<-tr.block
	}
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	tr.sent = append(tr.sent, rec)
	return tr.fail[rec.TaskID]
}

func (tr *fakeTransport) Sent() []progress.Record {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	return append([]progress.Record(nil), tr.sent...)
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

func change(task string) progress.Record {
	return progress.Record{OwnerID: "u1", CourseID: "c1", ChapterID: "ch1", TaskID: task}
}

func newEngine(tr Transport, opts ...func(*Options)) *Engine {
	o := Options{Transport: tr, QuietPeriod: quiet}
	for _, opt := range opts {
		opt(&o)
	}
	return NewEngine(o)
}

func TestEngine_ApplyLocalChange_validation(t *testing.T) {
	e := newEngine(&fakeTransport{})

	_, err := e.ApplyLocalChange(progress.Record{OwnerID: "u1", CourseID: "c1", TaskID: "  "})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Empty(t, e.Updates())
}

func TestEngine_optimisticView(t *testing.T) {
	e := newEngine(&fakeTransport{})

	rec := change("t1")
	rec.TaskCompleted = boolPtr(true)
	u, err := e.ApplyLocalChange(rec)
	require.NoError(t, err)
	assert.Equal(t, Queued, u.State.Kind)
	assert.NotEmpty(t, u.ID)

	got, ok := e.View("c1ch1t1")
	require.True(t, ok)
	assert.Equal(t, true, *got.TaskCompleted)
}

// Scenario A
func TestEngine_singleChangeIsFlushedAfterQuietPeriod(t *testing.T) {
	tr := &fakeTransport{}
	e := newEngine(tr)

	rec := change("t1")
	rec.TaskCompleted = boolPtr(true)
	_, err := e.ApplyLocalChange(rec)
	require.NoError(t, err)

	assert.Empty(t, tr.Sent(), "nothing is sent before the quiet period")
	assert.Eventually(t, func() bool { return len(tr.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, rec, tr.Sent()[0])
	assert.Eventually(t, func() bool { return len(e.Updates()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestEngine_supersededUpdateIsReported(t *testing.T) {
	var (
		mutex   sync.Mutex
		changes []Update
	)
	e := newEngine(&fakeTransport{}, func(o *Options) {
		o.QuietPeriod = time.Hour
		o.OnChange = func(u Update) {
			mutex.Lock()
			defer mutex.Unlock()
			changes = append(changes, u)
		}
	})

	first, err := e.ApplyLocalChange(change("t1"))
	require.NoError(t, err)
	second, err := e.ApplyLocalChange(change("t1"))
	require.NoError(t, err)

	mutex.Lock()
	defer mutex.Unlock()
	require.Len(t, changes, 3)
	dropped := changes[1]
	assert.Equal(t, first.ID, dropped.ID)
	assert.Equal(t, Superseded, dropped.State.Kind)
	assert.True(t, dropped.State.Done())
	assert.Equal(t, second.ID, dropped.SupersededBy)
	assert.Equal(t, second.ID, changes[2].ID)
	assert.Equal(t, Queued, changes[2].State.Kind)
}

// Scenario B
func TestEngine_coalescesChangesOfSameKey(t *testing.T) {
	tr := &fakeTransport{}
	e := newEngine(tr)

	first := change("t1")
	first.TaskCompleted = boolPtr(true)
	second := change("t1")
	second.QuizScore = intPtr(85)

	_, err := e.ApplyLocalChange(first)
	require.NoError(t, err)
	time.Sleep(quiet / 2)
	_, err = e.ApplyLocalChange(second)
	require.NoError(t, err)

	require.Len(t, e.Updates(), 1, "the first change is superseded")

	assert.Eventually(t, func() bool { return len(tr.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * quiet)
	sent := tr.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, second, sent[0], "only the last payload goes out")
	assert.Nil(t, sent[0].TaskCompleted)

	view, _ := e.View("c1ch1t1")
	assert.Equal(t, 85, *view.QuizScore)
	assert.Equal(t, true, *view.TaskCompleted, "local view keeps both fields")
}

func TestEngine_distinctKeysAreSentOnce(t *testing.T) {
	tr := &fakeTransport{}
	e := newEngine(tr, func(o *Options) { o.QuietPeriod = time.Hour })

	for _, task := range []string{"t1", "t2", "t1", "t3", "t2"} {
		_, err := e.ApplyLocalChange(change(task))
		require.NoError(t, err)
	}
	require.NoError(t, e.Flush(context.Background()))

	tasks := make([]string, 0)
	for _, rec := range tr.Sent() {
		tasks = append(tasks, rec.TaskID)
	}
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, tasks)
}

func TestEngine_failureMarksUpdateErrored(t *testing.T) {
	tr := &fakeTransport{fail: map[string]error{"t2": &HTTPError{StatusCode: 500, Message: "operation failed"}}}
	var (
		mutex  sync.Mutex
		states []State
	)
	e := newEngine(tr, func(o *Options) {
		o.QuietPeriod = time.Hour
		o.OnChange = func(u Update) {
			mutex.Lock()
			defer mutex.Unlock()
			states = append(states, u.State)
		}
	})

	_, err := e.ApplyLocalChange(change("t1"))
	require.NoError(t, err)
	u2, err := e.ApplyLocalChange(change("t2"))
	require.NoError(t, err)

	err = e.Flush(context.Background())
	require.Error(t, err)

	updates := e.Updates()
	require.Len(t, updates, 1, "synced updates are pruned")
	assert.Equal(t, u2.ID, updates[0].ID)
	assert.Equal(t, State{Kind: Errored, Reason: "operation failed"}, updates[0].State)

	mutex.Lock()
	defer mutex.Unlock()
	assert.Contains(t, states, State{Kind: Synced})
	assert.Contains(t, states, State{Kind: Errored, Reason: "operation failed"})

	// no automatic retry
	time.Sleep(3 * quiet)
	assert.Len(t, tr.Sent(), 2)
}

func TestEngine_singleFlight(t *testing.T) {
	tr := &fakeTransport{block: make(chan struct{}), started: make(chan struct{}, 1)}
	e := newEngine(tr, func(o *Options) { o.QuietPeriod = time.Hour })

	_, err := e.ApplyLocalChange(change("t1"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Flush(context.Background()) }()
	<-tr.started

	// queued during the flight: waits for the next cycle
	_, err = e.ApplyLocalChange(change("t2"))
	require.NoError(t, err)
	require.NoError(t, e.Flush(context.Background()), "a second flush is a no-op")

	close(tr.block)
	require.NoError(t, <-done)
	require.Len(t, tr.Sent(), 1)
	assert.Equal(t, "t1", tr.Sent()[0].TaskID)

	require.NoError(t, e.Flush(context.Background()))
	require.Len(t, tr.Sent(), 2)
	assert.Equal(t, "t2", tr.Sent()[1].TaskID)
}

func TestEngine_nextCycleIsArmedAfterFlight(t *testing.T) {
	tr := &fakeTransport{block: make(chan struct{}), started: make(chan struct{}, 1)}
	e := newEngine(tr)

	_, err := e.ApplyLocalChange(change("t1"))
	require.NoError(t, err)
	<-tr.started
	_, err = e.ApplyLocalChange(change("t2"))
	require.NoError(t, err)
	close(tr.block)

	assert.Eventually(t, func() bool { return len(tr.Sent()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestEngine_Rollback(t *testing.T) {
	t.Run("unknown update", func(t *testing.T) {
		e := newEngine(&fakeTransport{})
		assert.Equal(t, ErrUnknownUpdate, e.Rollback("nope"))
	})

	t.Run("queued change is dropped and view restored", func(t *testing.T) {
		tr := &fakeTransport{}
		e := newEngine(tr, func(o *Options) { o.QuietPeriod = time.Hour })
		seeded := change("t1")
		seeded.QuizScore = intPtr(40)
		e.Seed([]progress.Record{seeded})

		delta := change("t1")
		delta.QuizScore = intPtr(90)
		u, err := e.ApplyLocalChange(delta)
		require.NoError(t, err)

		require.NoError(t, e.Rollback(u.ID))
		view, ok := e.View("c1ch1t1")
		require.True(t, ok)
		assert.Equal(t, 40, *view.QuizScore)

		require.NoError(t, e.Flush(context.Background()))
		assert.Empty(t, tr.Sent())
		assert.Empty(t, e.Updates())
	})

	t.Run("errored change reverts the local value", func(t *testing.T) {
		tr := &fakeTransport{fail: map[string]error{"t1": &HTTPError{StatusCode: 500, Message: "boom"}}}
		e := newEngine(tr, func(o *Options) { o.QuietPeriod = time.Hour })

		delta := change("t1")
		delta.TaskCompleted = boolPtr(true)
		u, err := e.ApplyLocalChange(delta)
		require.NoError(t, err)
		require.Error(t, e.Flush(context.Background()))

		require.NoError(t, e.Rollback(u.ID))
		_, ok := e.View("c1ch1t1")
		assert.False(t, ok, "the key did not exist before the change")
		assert.Empty(t, e.Updates())
	})

	t.Run("later changes are replayed", func(t *testing.T) {
		tr := &fakeTransport{fail: map[string]error{"t1": &HTTPError{StatusCode: 500, Message: "boom"}}}
		e := newEngine(tr, func(o *Options) { o.QuietPeriod = time.Hour })

		first := change("t1")
		first.TaskCompleted = boolPtr(true)
		u1, err := e.ApplyLocalChange(first)
		require.NoError(t, err)
		require.Error(t, e.Flush(context.Background()))

		second := change("t1")
		second.QuizScore = intPtr(70)
		_, err = e.ApplyLocalChange(second)
		require.NoError(t, err)

		require.NoError(t, e.Rollback(u1.ID))
		view, ok := e.View("c1ch1t1")
		require.True(t, ok)
		assert.Nil(t, view.TaskCompleted)
		assert.Equal(t, 70, *view.QuizScore)
	})
}

func TestEngine_Close(t *testing.T) {
	tr := &fakeTransport{}
	e := newEngine(tr, func(o *Options) { o.QuietPeriod = time.Hour })

	_, err := e.ApplyLocalChange(change("t1"))
	require.NoError(t, err)
	require.NoError(t, e.Close(context.Background()))
	assert.Len(t, tr.Sent(), 1, "queued changes are sent on close")

	_, err = e.ApplyLocalChange(change("t2"))
	assert.Equal(t, ErrClosed, err)
	assert.Equal(t, ErrClosed, e.Flush(context.Background()))
}
