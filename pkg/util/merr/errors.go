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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// 叶子错误统一在此定义。
// WARN: 新增错误前请先确认下面已有的错误是否可以复用。
// 命名规则: Err + 相关前缀 + 错误名
var (
	// Service related
	ErrServiceInternal = newGardenError("service internal error", 5, false)

	// Deployment related, 端点注册与部署阶段的配置错误
	ErrDeploymentFailed      = newGardenError("deployment failed", 100, false)
	ErrDeploymentSealed      = newGardenError("deployment already finalized", 101, false)
	ErrPathOverlap           = newGardenError("endpoint path overlaps a registered path", 102, false)
	ErrPathTemplateInvalid   = newGardenError("invalid path template", 103, false)
	ErrEndpointNotDeclared   = newGardenError("endpoint not declared", 104, false)
	ErrEndpointInstantiation = newGardenError("endpoint cannot be instantiated", 105, false)

	// Negotiation related
	ErrNotAClientEndpoint    = newGardenError("not a client endpoint", 200, false)
	ErrExtensionMismatch     = newGardenError("extension mismatch", 201, false)
	ErrUnadvertisedExtension = newGardenError("unadvertised extension", 202, false)
	ErrHandshakeRejected     = newGardenError("handshake rejected", 203, false)
	ErrOriginNotAllowed      = newGardenError("origin not allowed", 204, false)

	// Container & Session related
	ErrContainerClosed = newGardenError("container closed", 300, false)
	ErrSessionClosed   = newGardenError("session closed", 301, false)
	ErrMessageTooBig   = newGardenError("message too big", 302, false)

	// IO related
	ErrIoFailed  = newGardenError("IO failed", 1001, false)
	ErrIoTimeout = newGardenError("IO timeout", 1003, true)

	// Parameter related
	ErrParameterInvalid = newGardenError("invalid parameter", 1100, false)
	ErrParameterMissing = newGardenError("missing parameter", 1101, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to gardenError
	errUnexpected = newGardenError("unexpected error", (1<<16)-1, false)

	// General
	ErrOperationNotSupported = newGardenError("unsupported operation", 3000, false)
)

type gardenError struct {
	msg       string
	retriable bool
	errCode   int32
}

func newGardenError(msg string, code int32, retriable bool) gardenError {
	return gardenError{
		msg:       msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e gardenError) code() int32 {
	return e.errCode
}

func (e gardenError) Error() string {
	return e.msg
}

func (e gardenError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(gardenError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Errors 返回聚合错误中包含的全部错误, 非聚合错误返回只含自身的切片。
func Errors(err error) []error {
	if err == nil {
		return nil
	}
	var me multiErrors
	if errors.As(err, &me) {
		return append([]error(nil), me.errs...)
	}
	return []error{err}
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
