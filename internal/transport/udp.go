package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/stillwind/opuscast/internal/wire"
)

// UDP implements [Transport] over a UDP socket: connected (dialed) on the
// sending side, bound on the receiving side.
type UDP struct {
	conn *net.UDPConn
}

// DialUDP creates a sending transport connected to addr ("host:port").
// sockBuf, when positive, sets SO_SNDBUF; a small send buffer keeps stale
// frames from queueing in the kernel.
func DialUDP(addr string, sockBuf int) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp %q: %w", addr, err)
	}
	if sockBuf > 0 {
		if err := conn.SetWriteBuffer(sockBuf); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: set send buffer: %w", err)
		}
	}
	return &UDP{conn: conn}, nil
}

// ListenUDP creates a receiving transport bound to addr (e.g. ":5004").
// sockBuf, when positive, sets SO_RCVBUF to absorb arrival bursts.
func ListenUDP(addr string, sockBuf int) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp %q: %w", addr, err)
	}
	if sockBuf > 0 {
		if err := conn.SetReadBuffer(sockBuf); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: set receive buffer: %w", err)
		}
	}
	return &UDP{conn: conn}, nil
}

// Send implements [Transport].
func (u *UDP) Send(ctx context.Context, datagram []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := u.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("transport: set write deadline: %w", err)
		}
	}
	if _, err := u.conn.Write(datagram); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("transport: udp send: %w", err)
	}
	return nil
}

// Receive implements [Transport]. The context deadline bounds the wait;
// without one, a default of one second applies so shutdown stays
// responsive.
func (u *UDP) Receive(ctx context.Context) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	if err := u.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("transport: set read deadline: %w", err)
	}

	buf := make([]byte, wire.MaxDatagramSize)
	n, _, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("transport: udp receive: %w", err)
	}
	return buf[:n], nil
}

// Addr returns the socket's local address, useful when listening on an
// ephemeral port.
func (u *UDP) Addr() string {
	return u.conn.LocalAddr().String()
}

// Close implements [Transport].
func (u *UDP) Close() error {
	return u.conn.Close()
}
