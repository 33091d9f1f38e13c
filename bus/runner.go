// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package bus

import (
	"sync"

	"localbus.dev/catalog"
	"localbus.dev/wire"
)

// A runner binds a transport to a callback execution strategy. The
// threaded runner owns a dispatch goroutine; the loop runner defers
// to a caller-supplied executor.
type runner interface {
	subscribe(catalog.Event) error
	unsubscribe(catalog.Event) error
	send(wire.Envelope) error
	shutdown()
}

// dispatchQueue is an unbounded FIFO of pending deliveries. The
// transport read loop posts into it and must never block there: a
// slow callback, or a busy caller-owned executor, cannot be allowed
// to stop the read loop from routing subscription acks.
type dispatchQueue struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{} // cap 1, signals drain that queue or stopped changed

	done chan struct{}
}

func newDispatchQueue() *dispatchQueue {
	return &dispatchQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// post queues fn. After stop, fn is silently dropped.
func (q *dispatchQueue) post(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.queue = append(q.queue, fn)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain hands each queued fn to run, in order, until stop. It is the
// body of the runner's pump goroutine.
func (q *dispatchQueue) drain(run func(fn func())) {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			stopped := q.stopped
			q.mu.Unlock()
			if stopped {
				return
			}
			<-q.wake
			continue
		}
		fn := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		run(fn)
	}
}

// stop ends intake, lets drain finish the work already queued, and
// waits for it to exit.
func (q *dispatchQueue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

// threadedRunner runs callbacks on a dedicated goroutine. Deliveries
// are queued in arrival order and executed one at a time, so
// callbacks never run concurrently with each other.
type threadedRunner struct {
	t *transport
	q *dispatchQueue
}

func startThreadedRunner(tc transportConfig) (*threadedRunner, error) {
	r := &threadedRunner{q: newDispatchQueue()}
	dispatch := tc.deliver
	tc.deliver = func(env wire.Envelope) {
		r.q.post(func() { dispatch(env) })
	}
	t, err := dialTransport(tc)
	if err != nil {
		return nil, err
	}
	r.t = t
	go r.q.drain(func(fn func()) { fn() })
	return r, nil
}

func (r *threadedRunner) subscribe(ev catalog.Event) error   { return r.t.subscribe(ev) }
func (r *threadedRunner) unsubscribe(ev catalog.Event) error { return r.t.unsubscribe(ev) }
func (r *threadedRunner) send(env wire.Envelope) error       { return r.t.send(env) }

// shutdown closes the broker connections, then runs the deliveries
// already queued to completion before returning.
func (r *threadedRunner) shutdown() {
	r.t.close()
	r.q.stop()
}

// loopRunner schedules callbacks onto an event loop owned by the
// caller, for programs that already run one and want bus callbacks
// serialized with the rest of their work. Deliveries pass through the
// same unbounded queue as the threaded runner, with a pump goroutine
// doing the executor handoff; only the pump ever waits on the
// caller's loop, never the transport read loop.
type loopRunner struct {
	t    *transport
	q    *dispatchQueue
	exec Executor

	// pending counts callbacks handed to the executor but not yet
	// finished, so shutdown can wait them out.
	pending sync.WaitGroup
}

func startLoopRunner(tc transportConfig, exec Executor) (*loopRunner, error) {
	r := &loopRunner{q: newDispatchQueue(), exec: exec}
	dispatch := tc.deliver
	tc.deliver = func(env wire.Envelope) {
		r.q.post(func() { dispatch(env) })
	}
	t, err := dialTransport(tc)
	if err != nil {
		return nil, err
	}
	r.t = t
	go r.q.drain(func(fn func()) {
		r.pending.Add(1)
		r.exec(func() {
			defer r.pending.Done()
			fn()
		})
	})
	return r, nil
}

func (r *loopRunner) subscribe(ev catalog.Event) error   { return r.t.subscribe(ev) }
func (r *loopRunner) unsubscribe(ev catalog.Event) error { return r.t.unsubscribe(ev) }
func (r *loopRunner) send(env wire.Envelope) error       { return r.t.send(env) }

func (r *loopRunner) shutdown() {
	r.t.close()
	r.q.stop()
	r.pending.Wait()
}
