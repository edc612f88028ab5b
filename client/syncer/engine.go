// Package syncer keeps a client's optimistic view of its progress records and
// pushes local changes to the server in debounced, coalesced flushes.
package syncer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
)

const (
	DefaultQuietPeriod = 2 * time.Second
	maxConcurrentSends = 4
)

var (
	ErrClosed        = errors.New("sync engine closed")
	ErrUnknownUpdate = errors.New("unknown update")
)

type Options struct {
	Transport Transport
	// QuietPeriod is waited after the last local change before flushing.
	QuietPeriod time.Duration
	// OnChange is called, outside of any lock, whenever an Update changes state or is dropped.
	OnChange func(Update)
	Logger   core.Logger
}

// Update tracks one local change until the server has it.
type Update struct {
	ID      string
	Key     string
	Payload progress.Record
	State   State
	// SupersededBy is the ID of the Update that replaced this one, set in the Superseded state.
	SupersededBy string

	seq    uint64
	before *progress.Record // view before the change; nil when the key was absent
}

type queueItem struct {
	updateID string
	payload  progress.Record
}

type Engine struct {
	opts Options

	mutex    sync.Mutex
	view     map[string]progress.Record // by client key
	updates  map[string]*Update         // active updates by id
	queue    map[string]queueItem       // unsent changes by client key
	seq      uint64
	timer    *time.Timer
	flushing bool
	idle     *sync.Cond // signaled when a flush ends
	closed   bool
}

func NewEngine(opts Options) *Engine {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	e := &Engine{
		opts:    opts,
		view:    make(map[string]progress.Record),
		updates: make(map[string]*Update),
		queue:   make(map[string]queueItem),
	}
	e.idle = sync.NewCond(&e.mutex)
	return e
}

// Seed loads server records into the view. Keys with active updates keep their local value.
func (e *Engine) Seed(records []progress.Record) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	active := make(map[string]bool, len(e.updates))
	for _, u := range e.updates {
		active[u.Key] = true
	}
	for _, rec := range records {
		if key := rec.ClientKey(); !active[key] {
			e.view[key] = rec
		}
	}
}

// ApplyLocalChange merges delta into the view right away and queues it for the next flush.
// A change still queued under the same key is replaced: only the last one is sent.
func (e *Engine) ApplyLocalChange(delta progress.Record) (Update, error) {
	delta.Clean()
	if missing := delta.MissingFields(); len(missing) > 0 {
		flds := make([]core.FieldError, 0, len(missing))
		for _, name := range missing {
			flds = append(flds, core.FieldError{Field: name, Error: "this field is required"})
		}
		return Update{}, core.NewValidationError(
			errors.Errorf("%s: %s", core.ErrMissingFields, strings.Join(missing, ", ")),
			flds...,
		)
	}

	e.mutex.Lock()
	if e.closed {
		e.mutex.Unlock()
		return Update{}, ErrClosed
	}

	key := delta.ClientKey()
	var before *progress.Record
	if cur, ok := e.view[key]; ok {
		before = &cur
		e.view[key] = cur.Merge(delta)
	} else {
		e.view[key] = delta
	}

	var superseded *Update
	if prev, ok := e.queue[key]; ok {
		if superseded = e.updates[prev.updateID]; superseded != nil {
			before = superseded.before // rolling back the replacement undoes both
			delete(e.updates, prev.updateID)
		}
	}

	e.seq++
	u := &Update{
		ID:      uuid.New().String(),
		Key:     key,
		Payload: delta,
		State:   State{Kind: Queued},
		seq:     e.seq,
		before:  before,
	}
	e.updates[u.ID] = u
	e.queue[key] = queueItem{updateID: u.ID, payload: delta}
	e.arm()
	snapshot := *u
	var dropped Update
	if superseded != nil {
		dropped = *superseded
		if st, err := dropped.State.superseded(); err == nil {
			dropped.State = st
		}
		dropped.SupersededBy = u.ID
	}
	e.mutex.Unlock()

	if superseded != nil {
		e.notify(dropped)
	}
	e.notify(snapshot)
	return snapshot, nil
}

// arm (re)starts the debounce timer. Callers hold the mutex.
func (e *Engine) arm() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.opts.QuietPeriod, func() {
		if err := e.Flush(context.Background()); err != nil && e.opts.Logger != nil {
			e.opts.Logger.Warn("progress flush failed", err)
		}
	})
}

// Flush sends every queued change, one write per key, and returns the first failure.
// It is a no-op while another flush is in flight: changes queued meanwhile go out in the next cycle.
func (e *Engine) Flush(ctx context.Context) error {
	return e.flush(ctx, false)
}

// flush sends the queue. When closing, it first waits for the flush in flight instead of skipping.
func (e *Engine) flush(ctx context.Context, closing bool) error {
	e.mutex.Lock()
	if e.closed && !closing {
		e.mutex.Unlock()
		return ErrClosed
	}
	for closing && e.flushing {
		e.idle.Wait()
	}
	if e.flushing || len(e.queue) == 0 {
		e.mutex.Unlock()
		return nil
	}
	e.flushing = true
	if e.timer != nil {
		e.timer.Stop()
	}

	items := make([]queueItem, 0, len(e.queue))
	sent := make([]Update, 0, len(e.queue))
	for key, item := range e.queue {
		delete(e.queue, key)
		u := e.updates[item.updateID]
		if u == nil {
			continue
		}
		if st, err := u.State.pending(); err == nil {
			u.State = st
		}
		items = append(items, item)
		sent = append(sent, *u)
	}
	e.mutex.Unlock()

	for _, u := range sent {
		e.notify(u)
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for _, item := range items {
		item := item
		g.Go(func() error {
			err := e.opts.Transport.Upsert(ctx, item.payload)
			e.settle(item.updateID, err)
			return err
		})
	}
	err := g.Wait()

	e.mutex.Lock()
	e.flushing = false
	e.idle.Broadcast()
	if len(e.queue) > 0 && !e.closed {
		e.arm()
	}
	e.mutex.Unlock()
	return err
}

// settle records the outcome of a sent update. Synced updates stop being tracked.
func (e *Engine) settle(id string, sendErr error) {
	e.mutex.Lock()
	u := e.updates[id]
	if u == nil { // rolled back while in flight
		e.mutex.Unlock()
		return
	}
	var err error
	if sendErr == nil {
		u.State, err = u.State.synced()
		delete(e.updates, id)
	} else {
		u.State, err = u.State.errored(reason(sendErr))
	}
	snapshot := *u
	e.mutex.Unlock()

	if err != nil && e.opts.Logger != nil {
		e.opts.Logger.Error("settling update", err)
	}
	e.notify(snapshot)
}

func reason(err error) string {
	if herr, ok := errors.Cause(err).(*HTTPError); ok {
		return herr.Message
	}
	return err.Error()
}

// Rollback forgets update id, drops it from the queue if it was not sent yet, and restores the
// view to what it was before the change. Changes made to the same key afterwards are replayed.
// A write already in flight is not cancelled.
func (e *Engine) Rollback(id string) error {
	e.mutex.Lock()
	u, ok := e.updates[id]
	if !ok {
		e.mutex.Unlock()
		return ErrUnknownUpdate
	}
	delete(e.updates, id)
	if item, ok := e.queue[u.Key]; ok && item.updateID == id {
		delete(e.queue, u.Key)
	}

	if u.before == nil {
		delete(e.view, u.Key)
	} else {
		e.view[u.Key] = *u.before
	}
	for _, later := range e.laterUpdates(u) {
		if cur, ok := e.view[u.Key]; ok {
			snap := cur
			later.before = &snap
			e.view[u.Key] = cur.Merge(later.Payload)
		} else {
			later.before = nil
			e.view[u.Key] = later.Payload
		}
	}
	dropped := *u
	e.mutex.Unlock()

	e.notify(dropped)
	return nil
}

// laterUpdates returns the active updates of u.Key made after u, oldest first. Callers hold the mutex.
func (e *Engine) laterUpdates(u *Update) []*Update {
	var later []*Update
	for _, other := range e.updates {
		if other.Key == u.Key && other.seq > u.seq {
			later = append(later, other)
		}
	}
	sort.Slice(later, func(i, j int) bool { return later[i].seq < later[j].seq })
	return later
}

// View returns the local value of the record under key.
func (e *Engine) View(key string) (progress.Record, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	rec, ok := e.view[key]
	return rec, ok
}

// Updates returns the tracked updates, oldest first.
func (e *Engine) Updates() []Update {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	list := make([]Update, 0, len(e.updates))
	for _, u := range e.updates {
		list = append(list, *u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}

// Close stops the debounce timer, waits for the flush in flight and sends what is still queued.
func (e *Engine) Close(ctx context.Context) error {
	e.mutex.Lock()
	if e.closed {
		e.mutex.Unlock()
		return nil
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mutex.Unlock()

	return e.flush(ctx, true)
}

func (e *Engine) notify(u Update) {
	if e.opts.OnChange != nil {
		e.opts.OnChange(u)
	}
}
