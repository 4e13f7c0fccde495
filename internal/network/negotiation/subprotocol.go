package negotiation

import (
	"strings"

	"github.com/samber/lo"
)

// SelectSubprotocol 选出服务端偏好列表中第一个同时出现在客户端提议中的子协议。
//
// 没有交集时返回空串，这不是错误。
func SelectSubprotocol(serverPreferred, clientOffered []string) string {
	offered := lo.SliceToMap(clientOffered, func(p string) (string, struct{}) {
		return strings.TrimSpace(p), struct{}{}
	})
	for _, p := range serverPreferred {
		if _, ok := offered[p]; ok {
			return p
		}
	}
	return ""
}

// ParseSubprotocols 解析 Sec-WebSocket-Protocol 头部值列表。
func ParseSubprotocols(values ...string) []string {
	var protocols []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				protocols = append(protocols, p)
			}
		}
	}
	return protocols
}
