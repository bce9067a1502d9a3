package log

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/ref"
)

var defaultLogger atomic.Value

func init() {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger.Store(loggerHolder{l})
}

type loggerHolder struct {
	logger.Logger
}

// Default 返回全局默认日志器
func Default() logger.Logger {
	return defaultLogger.Load().(loggerHolder).Logger
}

// SetDefault 替换全局默认日志器，nil 会被忽略
func SetDefault(l logger.Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(loggerHolder{l})
}

// NewLoggerWithOptions 根据 TypeOptions 创建日志器，options 为 nil 时返回默认日志器
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil || options.Type == "" {
		return Default(), nil
	}

	obj, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}
	l, ok := obj.(logger.Logger)
	if !ok {
		return nil, errors.Errorf("%T does not implement logger.Logger", obj)
	}
	return l, nil
}
