// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// defaultBufferSize is the bounded channel capacity between engines and the sink.
const defaultBufferSize = 256

// Dispatcher asynchronously forwards audit events to a [Sink].
//
// # Back-Pressure Policy
//
// The buffer is bounded and full-buffer events are DROPPED, with a counter
// kept for observability. Auditing is best-effort by contract: a slow sink
// must never add latency to a login or refresh call.
type Dispatcher struct {
	sink    Sink
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
}

// NewDispatcher starts the background worker and returns the dispatcher.
//
// bufferSize <= 0 selects the default capacity.
func NewDispatcher(sink Sink, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	dispatcher := &Dispatcher{
		sink:   sink,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}

	dispatcher.wg.Add(1)
	go dispatcher.run()

	return dispatcher
}

// run drains the event channel until Close, then flushes what remains.
func (dispatcher *Dispatcher) run() {
	defer dispatcher.wg.Done()

	for {
		select {
		case event := <-dispatcher.events:
			dispatcher.sink.Emit(context.Background(), event)
		case <-dispatcher.done:
			for {
				select {
				case event := <-dispatcher.events:
					dispatcher.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

/*
Record enqueues an audit event without blocking.

Description: Stamps the event time and hands it to the worker. If the buffer
is full the event is counted as dropped and discarded — the caller is never
delayed or failed.

Parameters:
  - ctx: context.Context (reserved for trace propagation; never awaited)
  - event: Event
*/
func (dispatcher *Dispatcher) Record(ctx context.Context, event Event) {
	if dispatcher == nil || dispatcher.closed.Load() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	select {
	case dispatcher.events <- event:
	default:
		dispatcher.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded due to a full buffer.
func (dispatcher *Dispatcher) Dropped() uint64 {
	return dispatcher.dropped.Load()
}

// Close stops accepting events, flushes the buffer, and waits for the worker.
func (dispatcher *Dispatcher) Close() {
	if dispatcher == nil || !dispatcher.closed.CompareAndSwap(false, true) {
		return
	}
	close(dispatcher.done)
	dispatcher.wg.Wait()
}
