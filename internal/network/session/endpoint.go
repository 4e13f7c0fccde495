package session

import (
	"github.com/lk2023060901/wsgarden/internal/network"
)

// Endpoint 为用户提供的 WebSocket 行为单元。
//
// 同一会话上的回调不会并发执行：OnOpen 一定先于第一条 OnMessage，
// 上一条 OnMessage 返回之前不会读取下一条消息。
type Endpoint interface {
	OnOpen(s *Session)
	OnMessage(s *Session, mt network.MessageType, data []byte)
	OnClose(s *Session, reason CloseReason)
	OnError(s *Session, err error)
}

// NopEndpoint 提供空实现，便于在自定义端点中嵌入后只覆写关心的回调。
type NopEndpoint struct{}

var _ Endpoint = NopEndpoint{}

func (NopEndpoint) OnOpen(*Session) {}

func (NopEndpoint) OnMessage(*Session, network.MessageType, []byte) {}

func (NopEndpoint) OnClose(*Session, CloseReason) {}

func (NopEndpoint) OnError(*Session, error) {}

// Executor 执行回调任务，实现必须保证任务最终被执行。
type Executor interface {
	Execute(task func())
}

// ExecutorFunc 将函数适配为 Executor。
type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) {
	f(task)
}

// DirectExecutor 在调用方协程上直接执行任务。
var DirectExecutor Executor = ExecutorFunc(func(task func()) { task() })

// Owner 为会话所属的已配置端点，会话只持有其非占有引用。
type Owner interface {
	// Identity 返回端点标识（服务端为路径模板，客户端为类型名）。
	Identity() string

	// Detach 在会话完全关闭（OnClose 返回）后调用一次。
	Detach(s *Session)
}
