package encoding

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

type chatMessage struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

type FactorySuite struct {
	suite.Suite
	factory *Factory
}

func (s *FactorySuite) SetupTest() {
	s.factory = NewFactory()
}

func (s *FactorySuite) TestCreateUnknown() {
	_, err := s.factory.Create([]string{"json", "yaml"}, nil)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = s.factory.Create(nil, []string{"missing"})
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *FactorySuite) TestDeclaredOrder() {
	enc, err := s.factory.Create(
		[]string{TextCodecName, ProtoCodecName, JSONCodecName},
		[]string{TextCodecName, BinaryCodecName, ProtoCodecName, JSONCodecName},
	)
	s.Require().NoError(err)
	s.Equal([]string{"text", "proto", "json"}, enc.EncoderNames())
	s.Equal([]string{"text", "binary", "proto", "json"}, enc.DecoderNames())

	mt, data, err := enc.Encode("hello")
	s.NoError(err)
	s.Equal(network.TextMessage, mt)
	s.Equal([]byte("hello"), data)

	mt, data, err = enc.Encode(wrapperspb.String("pb"))
	s.NoError(err)
	s.Equal(network.BinaryMessage, mt)
	var pb wrapperspb.StringValue
	s.NoError(enc.Decode(network.BinaryMessage, data, &pb))
	s.True(proto.Equal(wrapperspb.String("pb"), &pb))

	mt, data, err = enc.Encode(chatMessage{Room: "lobby", Text: "hi"})
	s.NoError(err)
	s.Equal(network.TextMessage, mt)
	var msg chatMessage
	s.NoError(enc.Decode(network.TextMessage, data, &msg))
	s.Equal(chatMessage{Room: "lobby", Text: "hi"}, msg)

	var text string
	s.NoError(enc.Decode(network.TextMessage, []byte("raw"), &text))
	s.Equal("raw", text)

	var raw []byte
	s.NoError(enc.Decode(network.BinaryMessage, []byte{1, 2}, &raw))
	s.Equal([]byte{1, 2}, raw)
}

func (s *FactorySuite) TestEmpty() {
	enc := Empty()
	s.False(enc.CanEncode("x"))
	_, _, err := enc.Encode("x")
	s.ErrorIs(err, merr.ErrParameterInvalid)
	var out string
	s.ErrorIs(enc.Decode(network.TextMessage, []byte("x"), &out), merr.ErrParameterInvalid)
}

func (s *FactorySuite) TestCodecTypeChecks() {
	_, err := ProtoCodec{}.Marshal("not proto")
	s.ErrorIs(err, merr.ErrParameterInvalid)
	s.ErrorIs(ProtoCodec{}.Unmarshal(nil, "not proto"), merr.ErrParameterInvalid)
	_, err = TextCodec{}.Marshal(1)
	s.ErrorIs(err, merr.ErrParameterInvalid)
	s.ErrorIs(TextCodec{}.Unmarshal(nil, "x"), merr.ErrParameterInvalid)
	_, err = BinaryCodec{}.Marshal(1)
	s.ErrorIs(err, merr.ErrParameterInvalid)
	s.ErrorIs(BinaryCodec{}.Unmarshal(nil, "x"), merr.ErrParameterInvalid)
	s.False(JSONCodec{}.Accepts(nil))
}

type upperCodec struct {
	TextCodec
}

func (upperCodec) Name() string { return TextCodecName }

func (upperCodec) Marshal(v any) ([]byte, error) {
	return []byte("UPPER"), nil
}

func (s *FactorySuite) TestOverride() {
	f := NewFactory(upperCodec{})
	c, ok := f.Lookup(TextCodecName)
	s.True(ok)
	data, err := c.Marshal("x")
	s.NoError(err)
	s.Equal([]byte("UPPER"), data)
}

func TestFactory(t *testing.T) {
	suite.Run(t, new(FactorySuite))
}
