// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package merr

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrPathOverlap("/a/{id}", "/a/b")
	errors.Wrap(err, "failed to register endpoint")
	s.ErrorIs(err, ErrPathOverlap)
	s.Equal(Code(ErrPathOverlap), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))

	sameCodeErr := newGardenError("new error", ErrPathOverlap.errCode, false)
	s.True(sameCodeErr.Is(ErrPathOverlap))
}

func (s *ErrSuite) TestWrap() {
	// Service 相关错误。
	s.ErrorIs(WrapErrServiceInternal("never throw out"), ErrServiceInternal)

	// 部署相关错误。
	s.ErrorIs(WrapErrDeploymentSealed("/chat"), ErrDeploymentSealed)
	s.ErrorIs(WrapErrPathOverlap("/a/{b}", "/a/c", "register"), ErrPathOverlap)
	s.ErrorIs(WrapErrPathTemplateInvalid("a/b", "missing leading slash"), ErrPathTemplateInvalid)
	s.ErrorIs(WrapErrEndpointNotDeclared(struct{}{}), ErrEndpointNotDeclared)
	s.ErrorIs(WrapErrEndpointInstantiation("/chat", os.ErrInvalid), ErrEndpointInstantiation)
	s.ErrorIs(WrapErrEndpointInstantiation("/chat", nil), ErrEndpointInstantiation)

	// 协商相关错误。
	s.ErrorIs(WrapErrNotAClientEndpoint(struct{}{}), ErrNotAClientEndpoint)
	s.ErrorIs(WrapErrExtensionMismatch("permessage-deflate"), ErrExtensionMismatch)
	s.ErrorIs(WrapErrUnadvertisedExtension("permessage-deflate"), ErrUnadvertisedExtension)
	s.ErrorIs(WrapErrHandshakeRejected("missing key"), ErrHandshakeRejected)
	s.ErrorIs(WrapErrOriginNotAllowed("http://evil"), ErrOriginNotAllowed)

	// 容器与会话相关错误。
	s.ErrorIs(WrapErrContainerClosed("connect"), ErrContainerClosed)
	s.ErrorIs(WrapErrSessionClosed(1), ErrSessionClosed)
	s.ErrorIs(WrapErrMessageTooBig(10, 5), ErrMessageTooBig)

	// IO 相关错误。
	s.ErrorIs(WrapErrIoFailed("ws://localhost", os.ErrClosed), ErrIoFailed)
	s.Nil(WrapErrIoFailed("ws://localhost", nil))

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterInvalidMsg("bad %s", "value"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("path"), ErrParameterMissing)
	s.ErrorIs(WrapErrOperationNotSupported("upgrade"), ErrOperationNotSupported)
}

func (s *ErrSuite) TestIoTimeout() {
	err := WrapErrIoTimeout("ws://localhost", time.Second)
	s.ErrorIs(err, ErrIoTimeout)
	s.ErrorIs(err, ErrIoFailed)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.True(IsRetryableErr(err))
}

func (s *ErrSuite) TestDeploymentFailed() {
	s.Nil(WrapErrDeploymentFailed())

	first := WrapErrPathOverlap("/a/{b}", "/a/c")
	second := WrapErrEndpointInstantiation("/d", nil)
	err := WrapErrDeploymentFailed(first, second)
	s.ErrorIs(err, ErrDeploymentFailed)
	s.ErrorIs(err, ErrPathOverlap)
	s.ErrorIs(err, ErrEndpointInstantiation)
	s.Len(Errors(err), 3)
	s.Len(Errors(first), 1)
	s.Nil(Errors(nil))
}

func (s *ErrSuite) TestRetryable() {
	s.True(IsRetryableErr(ErrIoTimeout))
	s.False(IsRetryableErr(WrapErrIoFailed("ws://localhost", os.ErrClosed)))
	s.False(IsRetryableErr(WrapErrContainerClosed()))
	s.False(IsRetryableErr(nil))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrPathOverlap("/a", "/a"), WrapErrContainerClosed())
	s.Equal(Code(ErrContainerClosed), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
