package negotiation

import (
	"strings"

	"github.com/samber/lo"

	"github.com/lk2023060901/wsgarden/pkg/util/merr"
	"github.com/lk2023060901/wsgarden/pkg/util/typeutil"
)

const (
	HeaderSecWebSocketProtocol   = "Sec-WebSocket-Protocol"
	HeaderSecWebSocketExtensions = "Sec-WebSocket-Extensions"
	HeaderSecWebSocketKey        = "Sec-WebSocket-Key"
	HeaderSecWebSocketVersion    = "Sec-WebSocket-Version"
	HeaderOrigin                 = "Origin"

	// PerMessageDeflate 为 RFC 7692 定义的压缩扩展名。
	PerMessageDeflate = "permessage-deflate"
)

// Parameter 为扩展参数，Value 为空表示无值参数。
type Parameter struct {
	Name  string
	Value string
}

// DeflateResponse 返回 gorilla/websocket 服务端应答的 permessage-deflate 参数，
// 传输层不支持上下文接管，两侧固定为 no_context_takeover。
func DeflateResponse() Extension {
	return Extension{
		Name: PerMessageDeflate,
		Parameters: []Parameter{
			{Name: "server_no_context_takeover"},
			{Name: "client_no_context_takeover"},
		},
	}
}

// Extension 为一个协议扩展及其参数。
type Extension struct {
	Name       string
	Parameters []Parameter
}

func (e Extension) String() string {
	var sb strings.Builder
	sb.WriteString(e.Name)
	for _, p := range e.Parameters {
		sb.WriteString("; ")
		sb.WriteString(p.Name)
		if p.Value != "" {
			sb.WriteString("=")
			sb.WriteString(p.Value)
		}
	}
	return sb.String()
}

// ParseExtensions 解析 Sec-WebSocket-Extensions 头部，支持多个头部值与逗号分隔。
func ParseExtensions(values ...string) []Extension {
	var exts []Extension
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			parts := strings.Split(item, ";")
			name := strings.TrimSpace(parts[0])
			if name == "" {
				continue
			}
			ext := Extension{Name: name}
			for _, raw := range parts[1:] {
				raw = strings.TrimSpace(raw)
				if raw == "" {
					continue
				}
				k, val, _ := strings.Cut(raw, "=")
				ext.Parameters = append(ext.Parameters, Parameter{
					Name:  strings.TrimSpace(k),
					Value: strings.Trim(strings.TrimSpace(val), `"`),
				})
			}
			exts = append(exts, ext)
		}
	}
	return exts
}

// FormatExtensions 将扩展列表格式化为单个头部值。
func FormatExtensions(exts []Extension) string {
	return strings.Join(lo.Map(exts, func(e Extension, _ int) string { return e.String() }), ", ")
}

// ExtensionNames 返回扩展名列表。
func ExtensionNames(exts []Extension) []string {
	return lo.Map(exts, func(e Extension, _ int) string { return e.Name })
}

func nameSet(exts []Extension) typeutil.Set[string] {
	return typeutil.NewSet(lo.Map(exts, func(e Extension, _ int) string { return strings.ToLower(e.Name) })...)
}

// NegotiateExtensions 以传输层结构性选中的扩展为准，与端点声明的扩展求交集。
//
// 结果保持 selected 的顺序；若传输层选中了端点从未声明的扩展，返回 ErrUnadvertisedExtension。
func NegotiateExtensions(selected, declared []Extension) ([]Extension, error) {
	declaredNames := nameSet(declared)
	result := make([]Extension, 0, len(selected))
	for _, ext := range selected {
		if !declaredNames.Contain(strings.ToLower(ext.Name)) {
			return nil, merr.WrapErrUnadvertisedExtension(ext.Name)
		}
		result = append(result, ext)
	}
	return result, nil
}

// VerifyClientExtensions 校验客户端握手完成后服务端返回的扩展均为本端请求过的扩展，
// 否则返回 ErrExtensionMismatch。
func VerifyClientExtensions(selected, requested []Extension) ([]Extension, error) {
	exts, err := NegotiateExtensions(selected, requested)
	if err != nil {
		bad, _ := lo.Find(selected, func(e Extension) bool {
			return !nameSet(requested).Contain(strings.ToLower(e.Name))
		})
		return nil, merr.WrapErrExtensionMismatch(bad.Name, err.Error())
	}
	return exts, nil
}

// DefaultNegotiatedExtensions 为服务端默认的扩展选择：按客户端请求顺序，
// 选出服务端已安装的扩展，同名只选一次。
func DefaultNegotiatedExtensions(installed, requested []Extension) []Extension {
	installedNames := nameSet(installed)
	seen := typeutil.NewSet[string]()
	result := make([]Extension, 0)
	for _, ext := range requested {
		name := strings.ToLower(ext.Name)
		if !installedNames.Contain(name) || seen.Contain(name) {
			continue
		}
		seen.Insert(name)
		result = append(result, ext)
	}
	return result
}
