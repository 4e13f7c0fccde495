package negotiation

import (
	"net/http"
	"strings"
)

// Headers 为大小写不敏感的多值头部映射，保留首次写入时的键名拼写与写入顺序。
//
// 供握手钩子读写请求/响应头使用；Emit 只输出值非空的键。
type Headers struct {
	order  []string
	names  map[string]string
	values map[string][]string
}

func NewHeaders() *Headers {
	return &Headers{
		names:  make(map[string]string),
		values: make(map[string][]string),
	}
}

// HeadersFromHTTP 复制 http.Header 构造 Headers。
func HeadersFromHTTP(h http.Header) *Headers {
	headers := NewHeaders()
	for name, vals := range h {
		headers.Set(name, vals...)
	}
	return headers
}

func fold(name string) string {
	return strings.ToLower(name)
}

// Get 返回第一个值，不存在时返回空串。
func (h *Headers) Get(name string) string {
	vals := h.values[fold(name)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Values 返回全部值的副本。
func (h *Headers) Values(name string) []string {
	return append([]string(nil), h.values[fold(name)]...)
}

// Has 判断键是否存在（值可以为空）。
func (h *Headers) Has(name string) bool {
	_, ok := h.names[fold(name)]
	return ok
}

// Set 覆盖键的全部值；不传值时保留键但值为空，Emit 时会被跳过。
func (h *Headers) Set(name string, vals ...string) {
	key := fold(name)
	if _, ok := h.names[key]; !ok {
		h.names[key] = name
		h.order = append(h.order, key)
	}
	h.values[key] = append([]string(nil), vals...)
}

// Add 追加值。
func (h *Headers) Add(name string, vals ...string) {
	key := fold(name)
	if _, ok := h.names[key]; !ok {
		h.Set(name, vals...)
		return
	}
	h.values[key] = append(h.values[key], vals...)
}

// Del 删除键。
func (h *Headers) Del(name string) {
	key := fold(name)
	if _, ok := h.names[key]; !ok {
		return
	}
	delete(h.names, key)
	delete(h.values, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Keys 按写入顺序返回键名（保留原始拼写）。
func (h *Headers) Keys() []string {
	keys := make([]string, 0, len(h.order))
	for _, k := range h.order {
		keys = append(keys, h.names[k])
	}
	return keys
}

// Len 返回键的数量。
func (h *Headers) Len() int {
	return len(h.order)
}

// Emit 将值非空的键写入新的 http.Header。
func (h *Headers) Emit() http.Header {
	out := make(http.Header, len(h.order))
	for _, k := range h.order {
		vals := h.values[k]
		if len(vals) == 0 {
			continue
		}
		out[http.CanonicalHeaderKey(h.names[k])] = append([]string(nil), vals...)
	}
	return out
}
