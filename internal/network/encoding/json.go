package encoding

import (
	"github.com/lk2023060901/wsgarden/internal/json"
	"github.com/lk2023060901/wsgarden/internal/network"
)

const JSONCodecName = "json"

// JSONCodec 使用 internal/json（基于 bytedance/sonic）实现 JSON 编解码，承载于文本消息。
type JSONCodec struct{}

// 编译期断言：确保 JSONCodec 实现了 Codec 接口。
var _ Codec = (*JSONCodec)(nil)

func (JSONCodec) Name() string {
	return JSONCodecName
}

func (JSONCodec) MessageType() network.MessageType {
	return network.TextMessage
}

// Accepts 对任意非 nil 值返回 true，因此通常声明在最后作为兜底。
func (JSONCodec) Accepts(v any) bool {
	return v != nil
}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
