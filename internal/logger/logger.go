package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserIDKey is the gin context key holding the authenticated user ID.
const UserIDKey = "userID"

// Logger wraps logrus logger
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a JSON logger for the given service at the given level
// (debug, info, warn, error). Unknown levels fall back to info.
func New(serviceName, level string) *Logger {
	return NewWithOutput(serviceName, level, os.Stdout)
}

func NewWithOutput(serviceName, level string, out io.Writer) *Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(out)

	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Logger: log, service: serviceName}
}

// Discard returns a logger that writes nowhere, for tests.
func Discard() *Logger {
	return NewWithOutput("test", "error", io.Discard)
}

func (l *Logger) base() *logrus.Entry {
	return l.WithField("service", l.service)
}

// Entry returns an entry carrying the service field.
func (l *Logger) Entry() *logrus.Entry {
	return l.base()
}

// WithError attaches err while keeping the service field, which the
// embedded logrus method would drop.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.base().WithError(err)
}

// WithUserID adds user ID to logger
func (l *Logger) WithUserID(userID int64) *logrus.Entry {
	return l.base().WithField("user_id", userID)
}

// WithContest adds contest ID to logger
func (l *Logger) WithContest(contestID string) *logrus.Entry {
	return l.base().WithField("contest_id", contestID)
}

// GinMiddleware logs one line per request.
func GinMiddleware(l *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := l.base().WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if uid, ok := c.Get(UserIDKey); ok {
			entry = entry.WithField("user_id", uid)
		}
		if len(c.Errors) > 0 {
			entry.WithField("error", c.Errors.String()).Error("HTTP request failed")
			return
		}
		entry.Debug("HTTP request completed")
	}
}
