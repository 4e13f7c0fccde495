package encoding

import (
	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

const (
	TextCodecName   = "text"
	BinaryCodecName = "binary"
)

// TextCodec 直接收发字符串，承载于文本消息。
type TextCodec struct{}

var _ Codec = (*TextCodec)(nil)

func (TextCodec) Name() string {
	return TextCodecName
}

func (TextCodec) MessageType() network.MessageType {
	return network.TextMessage
}

func (TextCodec) Accepts(v any) bool {
	switch v.(type) {
	case string, *string:
		return true
	}
	return false
}

func (TextCodec) Marshal(v any) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case *string:
		return []byte(*s), nil
	}
	return nil, merr.WrapErrParameterInvalidMsg("text codec requires string, got %T", v)
}

func (TextCodec) Unmarshal(data []byte, v any) error {
	s, ok := v.(*string)
	if !ok {
		return merr.WrapErrParameterInvalidMsg("text codec requires *string, got %T", v)
	}
	*s = string(data)
	return nil
}

// BinaryCodec 直接收发字节切片，承载于二进制消息。
type BinaryCodec struct{}

var _ Codec = (*BinaryCodec)(nil)

func (BinaryCodec) Name() string {
	return BinaryCodecName
}

func (BinaryCodec) MessageType() network.MessageType {
	return network.BinaryMessage
}

func (BinaryCodec) Accepts(v any) bool {
	switch v.(type) {
	case []byte, *[]byte:
		return true
	}
	return false
}

func (BinaryCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return nil, merr.WrapErrParameterInvalidMsg("binary codec requires []byte, got %T", v)
}

func (BinaryCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return merr.WrapErrParameterInvalidMsg("binary codec requires *[]byte, got %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}
