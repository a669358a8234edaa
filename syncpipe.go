package syncpipe

import (
	"io"
	"sync"
)

var (
	_ io.Reader     = (*PipeReader)(nil)
	_ io.WriterTo   = (*PipeReader)(nil)
	_ io.Closer     = (*PipeReader)(nil)
	_ io.Writer     = (*PipeWriter)(nil)
	_ io.ReaderFrom = (*PipeWriter)(nil)
	_ io.Closer     = (*PipeWriter)(nil)
)

// closeCause records the error supplied the first time an endpoint closes.
// Later stores are ignored so repeated closes keep the original cause.
type closeCause struct {
	mu  sync.Mutex
	err error
}

func (c *closeCause) store(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *closeCause) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

type pipe struct {
	writeMu sync.Mutex // serializes Write calls

	handoff  chan []byte // the writer's pending slice, unbuffered
	accepted chan int    // bytes the reader took from the pending slice

	once sync.Once
	done chan struct{}

	readerCause closeCause // cause supplied when the read side closed
	writerCause closeCause // cause supplied when the write side closed
}

func newPipe() *pipe {
	return &pipe{
		handoff:  make(chan []byte),
		accepted: make(chan int),
		done:     make(chan struct{}),
	}
}

func (p *pipe) read(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, p.readCloseError()
	default:
	}

	select {
	case pending := <-p.handoff:
		n := copy(b, pending)
		p.accepted <- n
		return n, nil
	case <-p.done:
		return 0, p.readCloseError()
	}
}

func (p *pipe) write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, p.writeCloseError()
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var written int
	for {
		select {
		case p.handoff <- b:
			n := <-p.accepted
			written += n
			b = b[n:]
		case <-p.done:
			return written, p.writeCloseError()
		}
		if len(b) == 0 {
			return written, nil
		}
	}
}

func (p *pipe) closeRead(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	p.readerCause.store(err)
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *pipe) closeWrite(err error) error {
	if err == nil {
		err = io.EOF
	}
	p.writerCause.store(err)
	p.once.Do(func() { close(p.done) })
	return nil
}

// readCloseError picks the error a Read reports once the pipe is closed: the
// writer's cause while the read side is still open, io.ErrClosedPipe after
// the reader closed itself.
func (p *pipe) readCloseError() error {
	if p.readerCause.load() == nil {
		if err := p.writerCause.load(); err != nil {
			return err
		}
	}
	return io.ErrClosedPipe
}

func (p *pipe) writeCloseError() error {
	if p.writerCause.load() == nil {
		if err := p.readerCause.load(); err != nil {
			return err
		}
	}
	return io.ErrClosedPipe
}

// Pipe creates a synchronous in-memory pipe and returns its two endpoints.
// Reads block until a write is pending and writes block until a reader has
// consumed every byte, so the two endpoints must be driven from different
// goroutines.
func Pipe() (*PipeReader, *PipeWriter) {
	p := newPipe()
	return &PipeReader{p}, &PipeWriter{p}
}

// PipeReader is the read half of a pipe.
type PipeReader struct {
	p *pipe
}

// Read implements io.Reader. It copies up to len(b) bytes straight out of
// the pending write and may return fewer bytes than len(b); callers loop
// until an error such as io.EOF marks the end of the stream.
func (r *PipeReader) Read(b []byte) (int, error) {
	return r.p.read(b)
}

// Close closes the reader side of the pipe. Pending and future writes fail
// with io.ErrClosedPipe.
func (r *PipeReader) Close() error {
	return r.p.closeRead(nil)
}

// CloseWithError closes the reader side of the pipe with an error. The error
// will be returned to pending and future writes on the writer side.
func (r *PipeReader) CloseWithError(err error) error {
	return r.p.closeRead(err)
}

// WriteTo implements io.WriterTo by draining the pipe into w until
// end-of-stream or an error occurs. The scratch buffer belongs to the copy
// loop, not the pipe; each chunk is still handed off synchronously.
func (r *PipeReader) WriteTo(w io.Writer) (int64, error) {
	return copyChunked(r.p.read, w.Write)
}

// PipeWriter is the write half of a pipe.
type PipeWriter struct {
	p *pipe
}

// Write implements io.Writer. It blocks until reader(s) have consumed all of
// b, or until the pipe is closed; on close it returns the bytes handed off so
// far together with the close cause. A zero-length write still performs one
// handoff and can serve as a synchronization signal.
func (w *PipeWriter) Write(b []byte) (int, error) {
	return w.p.write(b)
}

// Close closes the writer side of the pipe. Once any pending handoff
// completes, reads fail with io.EOF.
func (w *PipeWriter) Close() error {
	return w.p.closeWrite(nil)
}

// CloseWithError closes the writer side of the pipe with an error. The error
// will be returned to future reads on the reader side.
func (w *PipeWriter) CloseWithError(err error) error {
	return w.p.closeWrite(err)
}

// ReadFrom implements io.ReaderFrom by feeding the pipe from r until EOF or
// an error occurs.
func (w *PipeWriter) ReadFrom(r io.Reader) (int64, error) {
	return copyChunked(r.Read, w.p.write)
}

func copyChunked(read, write func([]byte) (int, error)) (int64, error) {
	chunk := make([]byte, 32*1024)
	var total int64
	for {
		n, readErr := read(chunk)
		if n > 0 {
			wn, writeErr := write(chunk[:n])
			if wn < 0 || wn > n {
				wn = 0
				if writeErr == nil {
					writeErr = io.ErrShortWrite
				}
			}
			total += int64(wn)
			if writeErr != nil {
				return total, writeErr
			}
			if wn != n {
				return total, io.ErrShortWrite
			}
		}
		switch readErr {
		case nil:
		case io.EOF:
			return total, nil
		default:
			return total, readErr
		}
	}
}
