package pathtemplate

import (
	"strings"

	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// segment 为模板中的一段，要么是字面量，要么是 {name} 形式的命名参数。
type segment struct {
	literal string
	param   string
}

func (s segment) isParam() bool {
	return s.param != ""
}

// Template 为编译后的 URL 路径模板，例如 /rooms/{room}/users/{user}。
//
// 命名参数匹配单个非空路径段；模板创建后不可变，可在多个协程间共享。
type Template struct {
	raw      string
	segments []segment
	params   []string
}

// Parse 编译路径模板。
//
// 规则：
//   - 必须以 "/" 开头；末尾的 "/" 会被忽略（根路径 "/" 除外）。
//   - 参数段必须完整占据一个路径段，例如 {id}；不支持 a{id}b 这类混合段。
//   - 参数名不能为空且不能重复；字面量段不能为空（即不允许出现 "//"）。
func Parse(path string) (*Template, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, merr.WrapErrPathTemplateInvalid(path, "path must start with '/'")
	}
	normalized := path
	if len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}

	t := &Template{raw: normalized}
	if normalized == "/" {
		return t, nil
	}

	seen := make(map[string]struct{})
	for _, part := range strings.Split(normalized[1:], "/") {
		switch {
		case part == "":
			return nil, merr.WrapErrPathTemplateInvalid(path, "empty path segment")
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := strings.TrimSpace(part[1 : len(part)-1])
			if name == "" {
				return nil, merr.WrapErrPathTemplateInvalid(path, "empty parameter name")
			}
			if strings.ContainsAny(name, "{}") {
				return nil, merr.WrapErrPathTemplateInvalid(path, "nested braces in parameter "+name)
			}
			if _, dup := seen[name]; dup {
				return nil, merr.WrapErrPathTemplateInvalid(path, "duplicate parameter "+name)
			}
			seen[name] = struct{}{}
			t.segments = append(t.segments, segment{param: name})
			t.params = append(t.params, name)
		case strings.ContainsAny(part, "{}"):
			return nil, merr.WrapErrPathTemplateInvalid(path, "parameter must span a whole segment: "+part)
		default:
			t.segments = append(t.segments, segment{literal: part})
		}
	}
	return t, nil
}

// MustParse 与 Parse 相同，但在模板非法时 panic，仅用于常量模板。
func MustParse(path string) *Template {
	t, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return t
}

// String 返回规范化后的模板文本。
func (t *Template) String() string {
	return t.raw
}

// ParameterNames 按出现顺序返回参数名。
func (t *Template) ParameterNames() []string {
	return append([]string(nil), t.params...)
}

// Match 判断具体请求路径是否匹配模板，匹配时返回参数值。
func (t *Template) Match(path string) (map[string]string, bool) {
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	var parts []string
	if path != "/" {
		parts = strings.Split(path[1:], "/")
	}
	if len(parts) != len(t.segments) {
		return nil, false
	}

	params := make(map[string]string, len(t.params))
	for i, seg := range t.segments {
		part := parts[i]
		if part == "" {
			return nil, false
		}
		if seg.isParam() {
			params[seg.param] = part
			continue
		}
		if seg.literal != part {
			return nil, false
		}
	}
	return params, true
}

// Overlaps 判断是否存在某个具体路径能同时匹配两个模板。
//
// 两个模板段数相同，且每个位置上不存在两个不同的字面量时即视为重叠；
// 因为参数段可以匹配任意非空字面量，/a/{x} 与 /a/b 重叠，/a/{x} 与 /a/{y} 也重叠。
func (t *Template) Overlaps(other *Template) bool {
	if len(t.segments) != len(other.segments) {
		return false
	}
	for i := range t.segments {
		a, b := t.segments[i], other.segments[i]
		if !a.isParam() && !b.isParam() && a.literal != b.literal {
			return false
		}
	}
	return true
}

// Compare 定义模板的排序关系：段数少的在前；同段数时逐段比较，
// 字面量段排在参数段之前，字面量之间按字典序。
//
// 返回 0 表示两个模板形状相同（必然重叠），但重叠的模板不一定返回 0，
// 重叠判定请使用 Overlaps。
func (t *Template) Compare(other *Template) int {
	if len(t.segments) != len(other.segments) {
		if len(t.segments) < len(other.segments) {
			return -1
		}
		return 1
	}
	for i := range t.segments {
		a, b := t.segments[i], other.segments[i]
		switch {
		case a.isParam() && b.isParam():
			continue
		case a.isParam():
			return 1
		case b.isParam():
			return -1
		default:
			if c := strings.Compare(a.literal, b.literal); c != 0 {
				return c
			}
		}
	}
	return 0
}
