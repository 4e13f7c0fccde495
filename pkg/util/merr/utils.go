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
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case gardenError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// IsRetryableErr 判断错误（或聚合错误中的任一成员）是否可重试。
func IsRetryableErr(err error) bool {
	for _, e := range Errors(err) {
		if ge, ok := errors.Cause(e).(gardenError); ok && ge.retriable {
			return true
		}
	}
	return false
}

// Service related
func WrapErrServiceInternal(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceInternal, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Deployment related
func WrapErrDeploymentSealed(target string, msg ...string) error {
	err := wrapFields(ErrDeploymentSealed, value("endpoint", target))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrPathOverlap(path string, existing string, msg ...string) error {
	err := wrapFields(ErrPathOverlap,
		value("path", path),
		value("existing", existing),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrPathTemplateInvalid(path string, reason string) error {
	return wrapFieldsWithDesc(ErrPathTemplateInvalid, reason, value("path", path))
}

func WrapErrEndpointNotDeclared(target any, msg ...string) error {
	err := wrapFields(ErrEndpointNotDeclared, value("type", fmt.Sprintf("%T", target)))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrEndpointInstantiation(endpoint string, err error) error {
	if err == nil {
		return wrapFields(ErrEndpointInstantiation, value("endpoint", endpoint))
	}
	return wrapFieldsWithDesc(ErrEndpointInstantiation, err.Error(), value("endpoint", endpoint))
}

// WrapErrDeploymentFailed 将部署期间累积的错误合并为一个聚合错误,
// 聚合错误对 ErrDeploymentFailed 以及其中每一个错误都满足 errors.Is。
func WrapErrDeploymentFailed(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}
	head := wrapFields(ErrDeploymentFailed, value("failures", len(errs)))
	return Combine(append([]error{head}, errs...)...)
}

// Negotiation related
func WrapErrNotAClientEndpoint(target any, msg ...string) error {
	err := wrapFields(ErrNotAClientEndpoint, value("type", fmt.Sprintf("%T", target)))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrExtensionMismatch(extension string, msg ...string) error {
	err := wrapFields(ErrExtensionMismatch, value("extension", extension))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUnadvertisedExtension(extension string, msg ...string) error {
	err := wrapFields(ErrUnadvertisedExtension, value("extension", extension))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrHandshakeRejected(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrHandshakeRejected, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrOriginNotAllowed(origin string, msg ...string) error {
	err := wrapFields(ErrOriginNotAllowed, value("origin", origin))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Container & Session related
func WrapErrContainerClosed(msg ...string) error {
	err := error(ErrContainerClosed)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionClosed(id uint64, msg ...string) error {
	err := wrapFields(ErrSessionClosed, value("session", id))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrMessageTooBig(size, limit int, msg ...string) error {
	err := wrapFields(ErrMessageTooBig,
		value("size", size),
		value("limit", limit),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// IO related
func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

// WrapErrIoTimeout 返回的错误同时满足 ErrIoTimeout, ErrIoFailed 与 context.DeadlineExceeded。
func WrapErrIoTimeout(key string, timeout time.Duration) error {
	return Combine(
		wrapFields(ErrIoTimeout, value("key", key), value("timeout", timeout)),
		ErrIoFailed,
		context.DeadlineExceeded,
	)
}

// Parameter related
func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrOperationNotSupported(operation string, msg ...string) error {
	err := wrapFields(ErrOperationNotSupported, value("operation", operation))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err gardenError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	return err
}

func wrapFieldsWithDesc(err gardenError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
