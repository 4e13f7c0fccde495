package encoding

import (
	"sync"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// Factory 维护按名称注册的编解码器，并根据端点声明生成 Encoding。
type Factory struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewFactory 创建工厂，默认注册 text/binary/proto/json 四种编解码器，
// codecs 中同名的会覆盖默认实现。
func NewFactory(codecs ...Codec) *Factory {
	f := &Factory{codecs: make(map[string]Codec)}
	f.Register(TextCodec{}, BinaryCodec{}, ProtoCodec{}, JSONCodec{})
	f.Register(codecs...)
	return f
}

// Register 注册或覆盖编解码器。
func (f *Factory) Register(codecs ...Codec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range codecs {
		if c == nil {
			continue
		}
		f.codecs[c.Name()] = c
	}
}

// Lookup 按名称查找编解码器。
func (f *Factory) Lookup(name string) (Codec, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.codecs[name]
	return c, ok
}

// Create 按声明顺序解析编码器与解码器名称并生成 Encoding；
// 任一名称未注册时返回 ErrParameterInvalid。
func (f *Factory) Create(encoders, decoders []string) (*Encoding, error) {
	encs, err := f.resolve(encoders)
	if err != nil {
		return nil, err
	}
	decs, err := f.resolve(decoders)
	if err != nil {
		return nil, err
	}
	return &Encoding{encoders: encs, decoders: decs}, nil
}

func (f *Factory) resolve(names []string) ([]Codec, error) {
	result := make([]Codec, 0, len(names))
	for _, name := range names {
		c, ok := f.Lookup(name)
		if !ok {
			return nil, merr.WrapErrParameterInvalidMsg("codec %q is not registered", name)
		}
		result = append(result, c)
	}
	return result, nil
}

// Encoding 为端点的载荷适配器：按声明顺序选出第一个能处理目标类型的编解码器。
//
// 创建后只读，可在会话间共享。
type Encoding struct {
	encoders []Codec
	decoders []Codec
}

// Empty 返回没有任何编解码器的 Encoding。
func Empty() *Encoding {
	return &Encoding{}
}

// CanEncode 判断是否有编码器能处理 v。
func (e *Encoding) CanEncode(v any) bool {
	_, ok := e.encoderFor(v)
	return ok
}

// Encode 编码对象并返回应使用的消息类型。
func (e *Encoding) Encode(v any) (network.MessageType, []byte, error) {
	c, ok := e.encoderFor(v)
	if !ok {
		return 0, nil, merr.WrapErrParameterInvalidMsg("no encoder declared for %T", v)
	}
	data, err := c.Marshal(v)
	if err != nil {
		return 0, nil, err
	}
	return c.MessageType(), data, nil
}

// Decode 将指定类型的消息解码到 v。
func (e *Encoding) Decode(mt network.MessageType, data []byte, v any) error {
	for _, c := range e.decoders {
		if c.MessageType() == mt && c.Accepts(v) {
			return c.Unmarshal(data, v)
		}
	}
	return merr.WrapErrParameterInvalidMsg("no %s decoder declared for %T", mt, v)
}

// EncoderNames 返回编码器名称，用于日志。
func (e *Encoding) EncoderNames() []string {
	return codecNames(e.encoders)
}

// DecoderNames 返回解码器名称，用于日志。
func (e *Encoding) DecoderNames() []string {
	return codecNames(e.decoders)
}

func (e *Encoding) encoderFor(v any) (Codec, bool) {
	for _, c := range e.encoders {
		if c.Accepts(v) {
			return c, true
		}
	}
	return nil, false
}

func codecNames(codecs []Codec) []string {
	names := make([]string, 0, len(codecs))
	for _, c := range codecs {
		names = append(names, c.Name())
	}
	return names
}
