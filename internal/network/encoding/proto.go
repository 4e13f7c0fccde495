package encoding

import (
	"google.golang.org/protobuf/proto"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

const ProtoCodecName = "proto"

// ProtoCodec 使用 Protobuf 进行二进制序列化，承载于二进制消息。
//
// 注意：传入/传出的对象必须实现 proto.Message。
type ProtoCodec struct{}

// 编译期断言：确保 ProtoCodec 实现了 Codec 接口。
var _ Codec = (*ProtoCodec)(nil)

func (ProtoCodec) Name() string {
	return ProtoCodecName
}

func (ProtoCodec) MessageType() network.MessageType {
	return network.BinaryMessage
}

func (ProtoCodec) Accepts(v any) bool {
	_, ok := v.(proto.Message)
	return ok
}

func (ProtoCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, merr.WrapErrParameterInvalidMsg("proto codec requires proto.Message, got %T", v)
	}
	return proto.Marshal(msg)
}

func (ProtoCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return merr.WrapErrParameterInvalidMsg("proto codec requires proto.Message, got %T", v)
	}
	return proto.Unmarshal(data, msg)
}
