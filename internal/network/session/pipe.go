package session

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

const pipeBufferSize = 64

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

type pipeFrame struct {
	mt     network.MessageType
	data   []byte
	reason *CloseReason
}

// pipeChannel 为进程内的 Channel 实现，两端通过带缓冲的 channel 连接。
type pipeChannel struct {
	name    string
	inbound chan pipeFrame
	peer    *pipeChannel

	mu           sync.Mutex
	readDeadline time.Time
	readLimit    int64

	closed    chan struct{}
	closeOnce sync.Once
}

var _ Channel = (*pipeChannel)(nil)

// Pipe 创建一对相互连接的进程内 Channel，写入一端的消息可从另一端读出。
//
// 用于进程内传输以及不经过网络的会话测试。
func Pipe() (Channel, Channel) {
	a := &pipeChannel{name: "pipe-a", inbound: make(chan pipeFrame, pipeBufferSize), closed: make(chan struct{})}
	b := &pipeChannel{name: "pipe-b", inbound: make(chan pipeFrame, pipeBufferSize), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (c *pipeChannel) ReadMessage() (network.MessageType, []byte, error) {
	c.mu.Lock()
	deadline, limit := c.readDeadline, c.readLimit
	c.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	default:
	}

	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case <-timeout:
		return 0, nil, os.ErrDeadlineExceeded
	case f := <-c.inbound:
		return f.unpack(limit)
	case <-c.peer.closed:
		// 对端已关闭，先读完缓冲中的帧
		select {
		case f := <-c.inbound:
			return f.unpack(limit)
		default:
			return 0, nil, io.EOF
		}
	}
}

func (f pipeFrame) unpack(limit int64) (network.MessageType, []byte, error) {
	if f.reason != nil {
		return 0, nil, &CloseError{Reason: *f.reason}
	}
	if limit > 0 && int64(len(f.data)) > limit {
		return 0, nil, merr.WrapErrMessageTooBig(len(f.data), int(limit))
	}
	return f.mt, f.data, nil
}

func (c *pipeChannel) push(f pipeFrame, deadline time.Time) error {
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	case <-c.peer.closed:
		return net.ErrClosed
	case <-timeout:
		return os.ErrDeadlineExceeded
	case c.peer.inbound <- f:
		return nil
	}
}

func (c *pipeChannel) WriteMessage(mt network.MessageType, data []byte, deadline time.Time) error {
	buf := append([]byte(nil), data...)
	return c.push(pipeFrame{mt: mt, data: buf}, deadline)
}

func (c *pipeChannel) WriteClose(reason CloseReason) error {
	return c.push(pipeFrame{reason: &reason}, time.Now().Add(closeFrameTimeout))
}

func (c *pipeChannel) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *pipeChannel) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = limit
}

func (c *pipeChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

func (c *pipeChannel) LocalAddr() net.Addr {
	return pipeAddr(c.name)
}

func (c *pipeChannel) RemoteAddr() net.Addr {
	return pipeAddr(c.peer.name)
}
