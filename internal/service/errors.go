package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

// ValidationError 输入不合法，不会访问存储，也不应自动重试
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError 引用的文档不存在
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s not found", e.Collection, e.ID)
}

func (e *NotFoundError) Unwrap() error { return docstore.ErrNotFound }

// TransientError 存储暂不可用或超时，读操作可原样重试
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: temporarily unavailable: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PartialFailureError 多文档操作只提交了一部分。
// 调用方需先重新读取再决定是否重试，不能盲目重放。
type PartialFailureError struct {
	Op        string
	Committed []string
	Failed    string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: partially applied (committed: %s; failed: %s): %v",
		e.Op, strings.Join(e.Committed, ", "), e.Failed, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// PermissionError 存储拒绝访问或非所有者操作
type PermissionError struct {
	Op     string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: permission denied: %s", e.Op, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// storeErr 把存储层错误映射到业务错误分类
func storeErr(op, collection, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return &NotFoundError{Collection: collection, ID: id}
	case errors.Is(err, docstore.ErrPermissionDenied):
		return &PermissionError{Op: op, Reason: err.Error()}
	case errors.Is(err, docstore.ErrInvalidQuery):
		return &ValidationError{Reason: err.Error()}
	case errors.Is(err, model.ErrMalformed), errors.Is(err, model.ErrSchemaVersion):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	// Unavailable、超时以及其它未识别的驱动错误都按瞬时错误处理
	return &TransientError{Op: op, Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
