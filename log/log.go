package log

import (
	"context"
	"sync/atomic"

	"github.com/hatlonely/dbq/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegister("github.com/hatlonely/dbq/log", "SLog", NewSLogWithOptions)
	ref.MustRegister("github.com/hatlonely/dbq/log", "ConsoleWriter", NewConsoleWriter)
	ref.MustRegister("github.com/hatlonely/dbq/log", "FileWriter", NewFileWriterWithOptions)

	l, err := NewSLogWithOptions(&SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger.Store(&holder{l})
}

type holder struct {
	Logger
}

var defaultLogger atomic.Pointer[holder]

func Default() Logger {
	return defaultLogger.Load().Logger
}

// SetDefault 替换默认日志器，nil 被忽略
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(&holder{l})
	}
}

// NewLoggerWithOptions options 为 nil 时返回默认日志器
func NewLoggerWithOptions(options *ref.TypeOptions) (Logger, error) {
	if options == nil {
		return Default(), nil
	}
	l, err := ref.Build[Logger](options)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}
	return l, nil
}

type nop struct{}

// Nop 丢弃所有日志
func Nop() Logger {
	return nop{}
}

func (nop) Debug(string, ...any)                         {}
func (nop) Info(string, ...any)                          {}
func (nop) Warn(string, ...any)                          {}
func (nop) Error(string, ...any)                         {}
func (nop) DebugContext(context.Context, string, ...any) {}
func (nop) InfoContext(context.Context, string, ...any)  {}
func (nop) WarnContext(context.Context, string, ...any)  {}
func (nop) ErrorContext(context.Context, string, ...any) {}
func (n nop) With(...any) Logger                         { return n }
func (n nop) WithGroup(string) Logger                    { return n }
