package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	log  *logrus.Logger
	once sync.Once
)

// New 按级别和格式创建一个独立的 logger，format 为 "json" 或 "text"
func New(level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(ParseLevel(level))

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return l
}

// ParseLevel 未知级别按 info 处理
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Init 用配置重建全局 logger，cmd 启动时调用一次
func Init(level, format string) *logrus.Logger {
	log = New(level, format)
	once.Do(func() {})
	return log
}

// GetLogger 返回全局 logger，未初始化时读取 LOG_LEVEL
func GetLogger() *logrus.Logger {
	once.Do(func() {
		if log == nil {
			log = New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
		}
	})
	return log
}

// WithField adds a field to the logger
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields adds multiple fields to the logger
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithError adds an error field to the logger
func WithError(err error) *logrus.Entry {
	return GetLogger().WithError(err)
}

// OrDefault 组件构造时没有注入 logger 就用全局的
func OrDefault(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return GetLogger()
	}
	return l
}
