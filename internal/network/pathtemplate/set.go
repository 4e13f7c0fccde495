package pathtemplate

import (
	"sort"
	"sync"
)

// Set 为按 Compare 排序的模板集合，保证集合内任意两个模板互不重叠。
//
// 注册端点数量通常很小，插入时与每个已有模板做两两重叠检查。
type Set struct {
	mu        sync.RWMutex
	templates []*Template
}

func NewSet() *Set {
	return &Set{}
}

// Add 尝试插入模板；若与已有模板重叠则不做任何修改并返回冲突的模板。
func (s *Set) Add(t *Template) (*Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.templates {
		if existing.Overlaps(t) {
			return existing, false
		}
	}
	idx := sort.Search(len(s.templates), func(i int) bool {
		return s.templates[i].Compare(t) > 0
	})
	s.templates = append(s.templates, nil)
	copy(s.templates[idx+1:], s.templates[idx:])
	s.templates[idx] = t
	return nil, true
}

// Remove 移除与 t 文本相同的模板。
func (s *Set) Remove(t *Template) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.templates {
		if existing.raw == t.raw {
			s.templates = append(s.templates[:i], s.templates[i+1:]...)
			return true
		}
	}
	return false
}

// Match 返回第一个匹配路径的模板及参数；集合中模板互不重叠，因此结果唯一。
func (s *Set) Match(path string) (*Template, map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.templates {
		if params, ok := t.Match(path); ok {
			return t, params, true
		}
	}
	return nil, nil, false
}

// Len 返回模板数量。
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates)
}

// Templates 按排序顺序返回模板快照。
func (s *Set) Templates() []*Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Template(nil), s.templates...)
}
