package session

import (
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// closeFrameTimeout 为写关闭帧的超时时间。
const closeFrameTimeout = time.Second

// Channel 为握手完成后得到的原始双向消息通道。
//
// 帧的分片、掩码与控制帧由通道实现处理；ReadMessage 只能在单个协程中调用，
// 写方法可以并发调用。
type Channel interface {
	// ReadMessage 读取一条完整的数据消息；对端发送关闭帧时返回 *CloseError。
	ReadMessage() (network.MessageType, []byte, error)

	// WriteMessage 写出一条数据消息，deadline 为零值表示不设超时。
	WriteMessage(mt network.MessageType, data []byte, deadline time.Time) error

	// WriteClose 写出关闭帧。
	WriteClose(reason CloseReason) error

	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)

	// Close 关闭底层连接，阻塞中的 ReadMessage 会立即返回错误。
	Close() error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// wsChannel 将 gorilla/websocket 连接适配为 Channel。
type wsChannel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	readLimit int64
}

var _ Channel = (*wsChannel)(nil)

// NewWSChannel 包装 gorilla/websocket 连接。
func NewWSChannel(conn *websocket.Conn) Channel {
	return &wsChannel{conn: conn}
}

func (c *wsChannel) ReadMessage() (network.MessageType, []byte, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return 0, nil, &CloseError{Reason: NewCloseReason(CloseCode(ce.Code), ce.Text)}
		}
		if errors.Is(err, websocket.ErrReadLimit) {
			return 0, nil, merr.WrapErrMessageTooBig(-1, int(c.readLimit))
		}
		return 0, nil, err
	}
	return network.MessageType(mt), data, nil
}

func (c *wsChannel) WriteMessage(mt network.MessageType, data []byte, deadline time.Time) error {
	// gorilla 连接同一时刻只允许一个写者
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(mt), data)
}

func (c *wsChannel) WriteClose(reason CloseReason) error {
	msg := websocket.FormatCloseMessage(int(reason.Code), reason.Text)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (c *wsChannel) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsChannel) SetReadLimit(limit int64) {
	c.readLimit = limit
	c.conn.SetReadLimit(limit)
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}

func (c *wsChannel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *wsChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
