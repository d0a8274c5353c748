package transport

import (
	"context"
	"sync"
)

// Pipe returns a connected in-memory transport pair for tests: datagrams
// sent on one end are received on the other. The channel is lossless and
// ordered by default; tests simulate loss and reordering by choosing what
// to Send.
func Pipe() (a, b Transport) {
	ab := make(chan []byte, 256)
	ba := make(chan []byte, 256)
	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }
	return &pipeEnd{send: ab, recv: ba, done: done, close: closeDone},
		&pipeEnd{send: ba, recv: ab, done: done, close: closeDone}
}

type pipeEnd struct {
	send  chan []byte
	recv  chan []byte
	done  chan struct{}
	close func()
}

func (p *pipeEnd) Send(ctx context.Context, datagram []byte) error {
	buf := make([]byte, len(datagram))
	copy(buf, datagram)
	select {
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.send <- buf:
		return nil
	default:
		// A full pipe behaves like a congested network: the datagram is lost.
		return nil
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case d := <-p.recv:
		return d, nil
	}
}

func (p *pipeEnd) Close() error {
	p.close()
	return nil
}
