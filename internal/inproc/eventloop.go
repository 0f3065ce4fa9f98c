package inproc

import "sync"

// eventLoop serializes listener callbacks for one endpoint. Posting never
// blocks the producer; the queue is unbounded so an engine goroutine can
// never deadlock against a slow user callback.
type eventLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	stopped chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{stopped: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *eventLoop) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			close(l.stopped)
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}

// post enqueues one callback. Posts after stop are dropped.
func (l *eventLoop) post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// stop drains the queue and waits for the in-flight callback to return,
// so entity deletion only completes once the listener has quiesced.
// Calling stop from inside a callback running on this loop deadlocks;
// the listener interfaces forbid deleting an endpoint from its own
// callback for that reason.
func (l *eventLoop) stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.stopped
		return
	}
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.stopped
}
