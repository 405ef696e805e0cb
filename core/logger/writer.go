package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter moves formatted lines off the logging goroutine. One
// background loop owns the buffered sink; Write only enqueues a copy and
// blocks when the queue is full so lines are never dropped.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	stopped chan struct{}
	close   sync.Once

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &asyncWriter{
		lines:   make(chan []byte, 256),
		flushes: make(chan chan error),
		stopped: make(chan struct{}),
	}
	go w.loop(bufio.NewWriterSize(io.MultiWriter(sinks...), bufSize))
	return w
}

func (w *asyncWriter) loop(out *bufio.Writer) {
	defer close(w.stopped)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.fail(out.Flush())
				return
			}
			if _, err := out.Write(line); err != nil {
				w.fail(err)
				continue
			}
			// Flush when the queue is drained so lines show up promptly
			// without a syscall per line under load.
			if len(w.lines) == 0 {
				w.fail(out.Flush())
			}
		case ack := <-w.flushes:
			for n := len(w.lines); n > 0; n-- {
				if _, err := out.Write(<-w.lines); err != nil {
					w.fail(err)
				}
			}
			ack <- out.Flush()
		}
	}
}

// Write enqueues a copy of p.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush waits until everything queued so far has reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return errors.Join(<-ack, w.firstErr())
	case <-w.stopped:
		return w.firstErr()
	}
}

// Close drains the queue and returns the first write error seen.
func (w *asyncWriter) Close() error {
	w.close.Do(func() { close(w.lines) })
	<-w.stopped
	return w.firstErr()
}

func (w *asyncWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
