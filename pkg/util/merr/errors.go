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

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Service related
	ErrServiceInternal = newBundleError("service internal error", 5, false)

	// Bundle protocol related
	// 同一个类型名在注册表中只能出现一次，属于部署/配置错误。
	ErrDuplicateTypeName = newBundleError("duplicate entity type name", 100, false)
	// 注册表中不存在该类型名对应的工厂。
	ErrUnknownType = newBundleError("unknown entity type", 101, false)
	// 类型已注册，但 bundle 的版本不在工厂声明的支持区间内。
	ErrUnsupportedVersion    = newBundleError("unsupported entity version", 102, false)
	ErrMissingMandatoryField = newBundleError("missing mandatory field", 103, false)
	// 打包时遇到无法表示的字段值，属于调用方代码缺陷。
	ErrUnrepresentableField = newBundleError("unrepresentable field", 104, false)
	// 引用指向的实例在整个 bundle 流中都不存在。
	ErrDanglingReference = newBundleError("dangling entity reference", 105, false)
	ErrGraphInconsistent = newBundleError("entity graph inconsistent", 106, false)
	ErrFieldTypeMismatch = newBundleError("field type mismatch", 107, false)
	ErrFieldReduplicate  = newBundleError("field reduplicates", 108, false)
	ErrRegistrySealed    = newBundleError("entity registry sealed", 109, false)

	// Stream related
	ErrStreamCorrupted         = newBundleError("bundle stream corrupted", 200, false)
	ErrStreamFormatUnsupported = newBundleError("unsupported bundle stream format", 201, false)
	ErrFrameTooLarge           = newBundleError("frame too large", 202, false)

	// IO related
	ErrIoFailed      = newBundleError("IO failed", 1001, false)
	ErrIoUnexpectEOF = newBundleError("unexpected EOF", 1002, true)

	// Parameter related
	ErrParameterInvalid  = newBundleError("invalid parameter", 1100, false)
	ErrParameterMissing  = newBundleError("missing parameter", 1101, false)
	ErrParameterTooLarge = newBundleError("parameter too large", 1102, false)

	// General
	ErrOperationNotSupported = newBundleError("unsupported operation", 3000, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to bundleError
	errUnexpected = newBundleError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*bundleError)

func WithDetail(detail string) errorOption {
	return func(err *bundleError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *bundleError) {
		err.errType = etype
	}
}

type bundleError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newBundleError(msg string, code int32, retriable bool, options ...errorOption) bundleError {
	err := bundleError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e bundleError) code() int32 {
	return e.errCode
}

func (e bundleError) Error() string {
	return e.msg
}

func (e bundleError) Detail() string {
	return e.detail
}

func (e bundleError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(bundleError); ok {
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

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
