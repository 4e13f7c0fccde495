package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/encoding"
	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/metrics"
	"github.com/lk2023060901/wsgarden/pkg/util/conc"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

var idGenerator atomic.Uint64

// NextID 分配一个进程内唯一的会话 ID。
func NextID() uint64 {
	return idGenerator.Inc()
}

type state int32

const (
	stateNew state = iota
	stateOpening
	stateOpen
	stateClosed
)

// Params 为构造会话所需的参数，由容器在握手或连接完成后填充。
type Params struct {
	ID       uint64
	Side     network.Side
	Channel  Channel
	Endpoint Endpoint
	Executor Executor
	Owner    Owner
	Encoding *encoding.Encoding

	Subprotocol    string
	Extensions     []negotiation.Extension
	RequestURI     *url.URL
	PathParameters map[string]string
	UserProperties map[string]any

	MaxIdleTimeout             time.Duration
	AsyncSendTimeout           time.Duration
	MaxTextMessageBufferSize   int
	MaxBinaryMessageBufferSize int
	MaxFrameSize               int64

	Context context.Context
}

// Session 为一条已建立的 WebSocket 会话。
//
// 生命周期：New -> Opening（OnOpen 执行中）-> Open -> Closed。
// 读循环只在 OnOpen 返回后启动，消息回调按到达顺序逐条执行。
type Session struct {
	id       uint64
	side     network.Side
	channel  Channel
	endpoint Endpoint
	executor Executor
	owner    Owner
	encoding *encoding.Encoding

	subprotocol string
	extensions  []negotiation.Extension
	requestURI  *url.URL
	pathParams  map[string]string

	maxIdleTimeout   time.Duration
	asyncSendTimeout time.Duration
	maxTextSize      int
	maxBinarySize    int
	maxFrameSize     int64

	ctx    context.Context
	cancel context.CancelFunc
	logger *log.MLogger

	mu      sync.Mutex
	state   state
	closing bool
	reason  CloseReason
	props   map[string]any

	done       chan struct{}
	finishOnce sync.Once
}

// New 根据参数创建会话，此时会话尚未打开。
func New(params Params) (*Session, error) {
	if params.Channel == nil {
		return nil, merr.WrapErrParameterMissing("channel")
	}
	if params.Endpoint == nil {
		return nil, merr.WrapErrParameterMissing("endpoint")
	}
	if params.ID == 0 {
		params.ID = NextID()
	}
	if params.Executor == nil {
		params.Executor = DirectExecutor
	}
	if params.Encoding == nil {
		params.Encoding = encoding.Empty()
	}
	parent := params.Context
	if parent == nil {
		parent = context.Background()
	}

	props := make(map[string]any, len(params.UserProperties))
	for k, v := range params.UserProperties {
		props[k] = v
	}

	identity := ""
	if params.Owner != nil {
		identity = params.Owner.Identity()
	}
	// 回调通过 Session.Context 拿到的 logger 已带会话标识
	ctx, cancel := context.WithCancel(log.WithSession(parent, params.ID, string(params.Side), identity))
	s := &Session{
		id:               params.ID,
		side:             params.Side,
		channel:          params.Channel,
		endpoint:         params.Endpoint,
		executor:         params.Executor,
		owner:            params.Owner,
		encoding:         params.Encoding,
		subprotocol:      params.Subprotocol,
		extensions:       params.Extensions,
		requestURI:       params.RequestURI,
		pathParams:       params.PathParameters,
		maxIdleTimeout:   params.MaxIdleTimeout,
		asyncSendTimeout: params.AsyncSendTimeout,
		maxTextSize:      params.MaxTextMessageBufferSize,
		maxBinarySize:    params.MaxBinaryMessageBufferSize,
		maxFrameSize:     params.MaxFrameSize,
		ctx:              ctx,
		cancel:           cancel,
		props:            props,
		done:             make(chan struct{}),
	}

	s.logger = log.Ctx(ctx)
	return s, nil
}

// Open 执行 OnOpen 并启动读循环。
//
// OnOpen 期间会话被关闭时，直接完成关闭流程并返回 nil，调用方仍可拿到会话对象。
func (s *Session) Open() error {
	s.mu.Lock()
	if s.state != stateNew || s.closing {
		s.mu.Unlock()
		return merr.WrapErrSessionClosed(s.id)
	}
	s.state = stateOpening
	s.mu.Unlock()

	if limit := s.readLimit(); limit > 0 {
		s.channel.SetReadLimit(limit)
	}

	s.invoke(network.StageOpen, func() {
		s.endpoint.OnOpen(s)
	})

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.finish(true)
		return nil
	}
	s.state = stateOpen
	s.mu.Unlock()

	s.logger.Debug("session opened",
		zap.String("subprotocol", s.subprotocol),
		zap.Strings("extensions", negotiation.ExtensionNames(s.extensions)))

	conc.Go(func() (struct{}, error) {
		s.readLoop()
		return struct{}{}, nil
	})
	return nil
}

func (s *Session) readLoop() {
	defer s.finish(true)

	for {
		if s.maxIdleTimeout > 0 {
			_ = s.channel.SetReadDeadline(time.Now().Add(s.maxIdleTimeout))
		}
		mt, data, err := s.channel.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}

		if limit := s.limitFor(mt); limit > 0 && len(data) > limit {
			s.logger.Warn("message exceeds buffer size",
				zap.Stringer("type", mt),
				zap.Int("size", len(data)),
				zap.Int("limit", limit))
			_ = s.Close(NewCloseReason(CloseMessageTooBig, fmt.Sprintf("%s message exceeds %d bytes", mt, limit)))
			continue
		}

		s.invoke(network.StageDispatch, func() {
			s.endpoint.OnMessage(s, mt, data)
		})
	}
}

func (s *Session) handleReadError(err error) {
	if s.isClosing() {
		return
	}

	var ce *CloseError
	if errors.As(err, &ce) {
		s.logger.Debug("peer closed session", zap.Stringer("reason", ce.Reason))
		_ = s.closeInternal(ce.Reason, false)
		return
	}

	if errors.Is(err, merr.ErrMessageTooBig) {
		_ = s.Close(NewCloseReason(CloseMessageTooBig, "frame exceeds read limit"))
		return
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		s.logger.Info("session idle timeout", zap.Duration("maxIdleTimeout", s.maxIdleTimeout))
		_ = s.Close(NewCloseReason(CloseGoingAway, "idle timeout"))
		return
	}

	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, net.ErrClosed) {
		s.reportError(network.StageRecv, merr.WrapErrIoFailed(strconv.FormatUint(s.id, 10), err))
	}
	_ = s.closeInternal(NewCloseReason(CloseAbnormalClosure, ""), false)
}

func (s *Session) limitFor(mt network.MessageType) int {
	if mt == network.TextMessage {
		return s.maxTextSize
	}
	return s.maxBinarySize
}

// readLimit 为传输层整条消息的读取上限：取帧上限与两类消息缓冲上限中的最大值，
// 分类型的缓冲上限由读循环单独检查。
func (s *Session) readLimit() int64 {
	limit := s.maxFrameSize
	for _, size := range []int{s.maxTextSize, s.maxBinarySize} {
		if int64(size) > limit {
			limit = int64(size)
		}
	}
	return limit
}

// invoke 将回调提交到执行器并等待其返回。
func (s *Session) invoke(stage network.Stage, fn func()) {
	done := make(chan struct{})
	s.executor.Execute(func() {
		defer close(done)
		s.safeCall(stage, fn)
	})
	<-done
}

// safeCall 执行回调，回调 panic 时转为 OnError 并以 1011 关闭会话。
func (s *Session) safeCall(stage network.Stage, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ContainerCallbackErrors.WithLabelValues(stage.String()).Inc()
			err := merr.WrapErrServiceInternal(fmt.Sprintf("%v", r), "endpoint callback panicked")
			s.logger.Warn("endpoint callback panicked", zap.String("stage", stage.String()), zap.Any("recover", r))
			s.reportError(stage, err)
			_ = s.Close(NewCloseReason(CloseUnexpectedCondition, "endpoint callback failed"))
		}
	}()
	fn()
}

func (s *Session) reportError(stage network.Stage, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("OnError panicked", zap.String("stage", stage.String()), zap.Any("recover", r))
		}
	}()
	s.endpoint.OnError(s, err)
}

// Close 发送关闭帧并关闭会话，重复调用为空操作。
func (s *Session) Close(reason CloseReason) error {
	return s.closeInternal(reason, true)
}

func (s *Session) closeInternal(reason CloseReason, sendFrame bool) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.reason = reason
	neverOpened := s.state == stateNew
	if neverOpened {
		s.state = stateClosed
	}
	s.mu.Unlock()

	var errs []error
	if sendFrame && reason.Code.Sendable() {
		if err := s.channel.WriteClose(reason); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, merr.WrapErrIoFailed(strconv.FormatUint(s.id, 10), err))
		}
	}
	if err := s.channel.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, merr.WrapErrIoFailed(strconv.FormatUint(s.id, 10), err))
	}
	s.cancel()

	s.logger.Debug("session closing", zap.Stringer("reason", reason))
	if neverOpened {
		s.finish(false)
	}
	if len(errs) == 0 {
		return nil
	}
	return merr.Combine(errs...)
}

func (s *Session) finish(notify bool) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		if !s.closing {
			s.closing = true
			s.reason = NewCloseReason(CloseAbnormalClosure, "")
		}
		reason := s.reason
		s.mu.Unlock()
		s.cancel()

		if notify {
			s.invoke(network.StageClose, func() {
				s.endpoint.OnClose(s, reason)
			})
		}
		if s.owner != nil {
			s.owner.Detach(s)
		}
		close(s.done)
	})
}

// SendText 同步发送文本消息。
func (s *Session) SendText(text string) error {
	return s.send(network.TextMessage, []byte(text), time.Time{})
}

// SendBinary 同步发送二进制消息。
func (s *Session) SendBinary(data []byte) error {
	return s.send(network.BinaryMessage, data, time.Time{})
}

// SendObject 使用端点声明的编码器编码后同步发送。
func (s *Session) SendObject(v any) error {
	mt, data, err := s.encode(v)
	if err != nil {
		return err
	}
	return s.send(mt, data, time.Time{})
}

// SendAsync 异步发送 v，超时时间取 AsyncSendTimeout。
//
// string 按文本发送，[]byte 按二进制发送，其余类型交给编码器。
func (s *Session) SendAsync(v any) *conc.Future[struct{}] {
	return conc.Go(func() (struct{}, error) {
		mt, data, err := s.encode(v)
		if err != nil {
			return struct{}{}, err
		}
		var deadline time.Time
		if s.asyncSendTimeout > 0 {
			deadline = time.Now().Add(s.asyncSendTimeout)
		}
		return struct{}{}, s.send(mt, data, deadline)
	})
}

// Decode 使用端点声明的解码器将消息解码到 v。
func (s *Session) Decode(mt network.MessageType, data []byte, v any) error {
	return s.encoding.Decode(mt, data, v)
}

func (s *Session) encode(v any) (network.MessageType, []byte, error) {
	switch msg := v.(type) {
	case string:
		return network.TextMessage, []byte(msg), nil
	case []byte:
		return network.BinaryMessage, msg, nil
	}
	mt, data, err := s.encoding.Encode(v)
	if err != nil {
		metrics.ContainerCallbackErrors.WithLabelValues(network.StageEncode.String()).Inc()
		return 0, nil, err
	}
	return mt, data, nil
}

func (s *Session) send(mt network.MessageType, data []byte, deadline time.Time) error {
	s.mu.Lock()
	st, closing := s.state, s.closing
	s.mu.Unlock()
	if closing || (st != stateOpening && st != stateOpen) {
		return merr.WrapErrSessionClosed(s.id)
	}
	if err := s.channel.WriteMessage(mt, data, deadline); err != nil {
		return merr.WrapErrIoFailed(strconv.FormatUint(s.id, 10), err)
	}
	return nil
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) ID() uint64 {
	return s.id
}

func (s *Session) Side() network.Side {
	return s.side
}

// Context 在会话关闭时被取消。
func (s *Session) Context() context.Context {
	return s.ctx
}

// Done 在关闭流程（含 OnClose）全部完成后关闭。
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsOpen 判断会话是否处于可收发状态。
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closing && (s.state == stateOpening || s.state == stateOpen)
}

// CloseReason 返回关闭原因，会话未关闭时第二个返回值为 false。
func (s *Session) CloseReason() (CloseReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason, s.closing
}

func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

func (s *Session) Subprotocol() string {
	return s.subprotocol
}

func (s *Session) Extensions() []negotiation.Extension {
	return s.extensions
}

func (s *Session) RequestURI() *url.URL {
	return s.requestURI
}

func (s *Session) QueryString() string {
	if s.requestURI == nil {
		return ""
	}
	return s.requestURI.RawQuery
}

// PathParameter 返回路径模板中 {name} 对应的实际值。
func (s *Session) PathParameter(name string) (string, bool) {
	v, ok := s.pathParams[name]
	return v, ok
}

func (s *Session) PathParameters() map[string]string {
	out := make(map[string]string, len(s.pathParams))
	for k, v := range s.pathParams {
		out[k] = v
	}
	return out
}

func (s *Session) UserProperty(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.props[key]
	return v, ok
}

func (s *Session) SetUserProperty(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[key] = value
}

func (s *Session) MaxIdleTimeout() time.Duration {
	return s.maxIdleTimeout
}

func (s *Session) LocalAddr() net.Addr {
	return s.channel.LocalAddr()
}

func (s *Session) RemoteAddr() net.Addr {
	return s.channel.RemoteAddr()
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%d,%s)", s.id, s.side)
}
