package session

import (
	"sync"
	"time"

	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// Manager 维护某个端点当前所有打开的会话。
//
// 特性：
//   - Register 在遇到重复 ID 时返回错误，避免覆盖旧会话；
//   - Range 在遍历前复制一份会话切片，遍历期间其他协程可以并发增删；
//   - 会话集合变空时一次性通知所有等待者。
type Manager struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
	waiters  []func()
}

// NewManager 创建一个空的 Manager。
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[uint64]*Session),
	}
}

// Register 将会话加入集合。
func (m *Manager) Register(s *Session) error {
	if s == nil {
		return merr.WrapErrParameterMissing("session")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID()]; exists {
		return merr.WrapErrParameterInvalidMsg("session id %d already registered", s.ID())
	}
	m.sessions[s.ID()] = s
	return nil
}

// Get 根据 session id 查找会话。
func (m *Manager) Get(id uint64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	return s, ok
}

// Unregister 移除会话；集合因此变空时触发等待者。
func (m *Manager) Unregister(id uint64) bool {
	m.mu.Lock()
	if _, exists := m.sessions[id]; !exists {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	var waiters []func()
	if len(m.sessions) == 0 {
		waiters, m.waiters = m.waiters, nil
	}
	m.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
	return true
}

// Range 遍历会话快照，fn 返回 false 时中断。
func (m *Manager) Range(fn func(s *Session) bool) {
	if fn == nil {
		return
	}
	for _, s := range m.Snapshot() {
		if !fn(s) {
			return
		}
	}
}

// Snapshot 返回当前会话的副本。
func (m *Manager) Snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Count 返回当前会话数量。
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// NotifyEmpty 在集合为空时调用 fn：当前已为空则立即在调用方协程上执行，
// 否则在最后一个会话移除时执行，每个 fn 只执行一次。
func (m *Manager) NotifyEmpty(fn func()) {
	m.mu.Lock()
	if len(m.sessions) == 0 {
		m.mu.Unlock()
		fn()
		return
	}
	m.waiters = append(m.waiters, fn)
	m.mu.Unlock()
}

// AwaitEmpty 阻塞直到集合为空或超时，返回是否已为空。
func (m *Manager) AwaitEmpty(timeout time.Duration) bool {
	done := make(chan struct{})
	m.NotifyEmpty(func() { close(done) })

	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
