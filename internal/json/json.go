package json

import (
	"github.com/bytedance/sonic"
)

// api 使用与标准库行为一致的 sonic 配置（有序 map key、转义 HTML）。
var api = sonic.ConfigStd

// Marshal 将对象编码为 JSON。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal 将 JSON 解码到 v 中，v 必须为指针。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// MarshalToString 将对象编码为 JSON 字符串。
func MarshalToString(v any) (string, error) {
	return api.MarshalToString(v)
}

// UnmarshalFromString 从 JSON 字符串解码到 v 中。
func UnmarshalFromString(data string, v any) error {
	return api.UnmarshalFromString(data, v)
}

// Valid 判断 data 是否为合法 JSON。
func Valid(data []byte) bool {
	return api.Valid(data)
}
