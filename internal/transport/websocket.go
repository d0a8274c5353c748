package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/stillwind/opuscast/internal/wire"
)

// WS implements [Transport] over a WebSocket connection carrying binary
// messages. WebSocket rides on TCP, so unlike UDP it cannot reorder or
// drop datagrams itself — but the interface contract stays the same, and
// it lets a stream traverse networks where only HTTP gets through.
type WS struct {
	conn *websocket.Conn
}

// DialWS connects to a receiver's WebSocket endpoint, e.g.
// "ws://host:8080/stream".
func DialWS(ctx context.Context, url string) (*WS, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial websocket %q: %w", url, err)
	}
	conn.SetReadLimit(wire.MaxDatagramSize)
	return &WS{conn: conn}, nil
}

// Send implements [Transport].
func (w *WS) Send(ctx context.Context, datagram []byte) error {
	if err := w.conn.Write(ctx, websocket.MessageBinary, datagram); err != nil {
		return fmt.Errorf("transport: websocket send: %w", err)
	}
	return nil
}

// Receive implements [Transport].
func (w *WS) Receive(ctx context.Context) ([]byte, error) {
	typ, data, err := w.conn.Read(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		if websocket.CloseStatus(err) != -1 || errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("transport: websocket receive: %w", err)
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("transport: unexpected websocket message type %v", typ)
	}
	return data, nil
}

// Close implements [Transport].
func (w *WS) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "stream closed")
}

// WSListener accepts a single inbound WebSocket stream over HTTP. The
// receiver process runs one listener per configured stream endpoint.
type WSListener struct {
	srv      *http.Server
	listener net.Listener

	mu     sync.Mutex
	accept chan *WS
	closed bool
}

// ListenWS starts an HTTP server on addr that upgrades requests to path
// (e.g. "/stream") into stream transports.
func ListenWS(addr, path string) (*WSListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}

	l := &WSListener{
		listener: ln,
		accept:   make(chan *WS, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(rw http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(rw, r, nil)
		if err != nil {
			return
		}
		conn.SetReadLimit(wire.MaxDatagramSize)
		ws := &WS{conn: conn}

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			ws.Close()
			return
		}

		select {
		case l.accept <- ws:
			// Keep the handler alive until the connection dies; coder/websocket
			// closes the conn when the handler returns.
			<-r.Context().Done()
		default:
			// One stream per listener; refuse extras.
			conn.Close(websocket.StatusPolicyViolation, "stream already connected")
		}
	})

	l.srv = &http.Server{Handler: mux}
	go l.srv.Serve(ln)
	return l, nil
}

// Accept blocks until a sender connects or ctx is cancelled.
func (l *WSListener) Accept(ctx context.Context) (*WS, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ws, ok := <-l.accept:
		if !ok {
			return nil, ErrClosed
		}
		return ws, nil
	}
}

// Addr returns the bound listen address.
func (l *WSListener) Addr() string {
	return l.listener.Addr().String()
}

// Close shuts the HTTP server down.
func (l *WSListener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.srv.Close()
}
