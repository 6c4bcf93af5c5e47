package domain

import (
	"errors"
	"fmt"
)

const (
	ErrCodeConfig               = "config_error"
	ErrCodeCountMismatch        = "count_mismatch"
	ErrCodeInvalidNameCharacter = "invalid_name_character"
	ErrCodeDuplicateName        = "duplicate_name"
	ErrCodeSourceNotFound       = "source_not_found"
	ErrCodeDestinationCollision = "destination_collision"
	ErrCodeJobAlreadyRunning    = "job_already_running"
	ErrCodeIOFailure            = "io_failure"
	ErrCodeInvalidState         = "invalid_state"
)

// 哨兵错误：errors.Is 按 Code 匹配，任意同 Code 的 *Error 都会命中。
var (
	ErrConfig               = &Error{Code: ErrCodeConfig}
	ErrCountMismatch        = &Error{Code: ErrCodeCountMismatch}
	ErrInvalidNameCharacter = &Error{Code: ErrCodeInvalidNameCharacter}
	ErrDuplicateName        = &Error{Code: ErrCodeDuplicateName}
	ErrSourceNotFound       = &Error{Code: ErrCodeSourceNotFound}
	ErrDestinationCollision = &Error{Code: ErrCodeDestinationCollision}
	ErrJobAlreadyRunning    = &Error{Code: ErrCodeJobAlreadyRunning}
	ErrIOFailure            = &Error{Code: ErrCodeIOFailure}
	ErrInvalidState         = &Error{Code: ErrCodeInvalidState}
)

// Error 是核心的结构化错误（带 error_code）。
//
// Row 为 1-based 表格行号（0 表示与行无关）；Path 为相关文件路径（可空）。
type Error struct {
	Code string
	Msg  string
	Row  int
	Path string
	Err  error
}

func (e *Error) Error() string {
	s := e.Code
	if e.Msg != "" {
		s += "：" + e.Msg
	}
	if e.Row > 0 {
		s += fmt.Sprintf("（第 %d 行）", e.Row)
	}
	if e.Path != "" {
		s += fmt.Sprintf("：%q", e.Path)
	}
	if e.Err != nil {
		s += fmt.Sprintf("：%v", e.Err)
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrXxx) 按 Code 命中。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf 构造一个带 Code 的错误。
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
