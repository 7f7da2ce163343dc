package log

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Verbosity ladder. 0..2 are increasingly chatty info tiers, 3 enables
// debug, 4 and above enables trace.
const (
	LEVEL_INFO0 = uint(0)
	LEVEL_INFO1 = uint(1)
	LEVEL_INFO2 = uint(2)
	LEVEL_DEBUG = uint(3)
	LEVEL_TRACE = uint(4)
)

var globalLogLevel uint32

func init() {
	logrus.SetLevel(logrus.TraceLevel)
}

func SetGlobalLogLevel(level uint) {
	atomic.StoreUint32(&globalLogLevel, uint32(level))
}

func GlobalLogLevel() uint {
	return uint(atomic.LoadUint32(&globalLogLevel))
}

// Logger carries a set of tags appended to every line it emits.
type Logger struct {
	Fields logrus.Fields
}

func NewLogger() *Logger {
	return &Logger{Fields: logrus.Fields{}}
}

// NewConnLogger returns a logger tagged with a client identity. Zero client
// ID and empty IP mean "not yet known" and are omitted.
func NewConnLogger(clientID uint32, ip string) *Logger {
	log := NewLogger()
	if clientID != 0 {
		log.Fields["uid"] = clientID
	}
	if ip != "" {
		log.Fields["ip"] = ip
	}
	return log
}

func (log *Logger) entry() *logrus.Entry {
	return logrus.WithFields(log.Fields)
}

func (log *Logger) infoTier(tier uint, message string) {
	if GlobalLogLevel() >= tier {
		log.entry().Info(message)
	}
}

func (log *Logger) Info0(message string) { log.infoTier(LEVEL_INFO0, message) }
func (log *Logger) Info1(message string) { log.infoTier(LEVEL_INFO1, message) }
func (log *Logger) Info2(message string) { log.infoTier(LEVEL_INFO2, message) }

func (log *Logger) Infof0(format string, args ...interface{}) {
	log.Info0(fmt.Sprintf(format, args...))
}

func (log *Logger) Infof1(format string, args ...interface{}) {
	log.Info1(fmt.Sprintf(format, args...))
}

func (log *Logger) Infof2(format string, args ...interface{}) {
	log.Info2(fmt.Sprintf(format, args...))
}

func (log *Logger) Warn(message string) {
	log.entry().Warn(message)
}

func (log *Logger) Warnf(format string, args ...interface{}) {
	log.Warn(fmt.Sprintf(format, args...))
}

func (log *Logger) Error(message string) {
	log.entry().Error(message)
}

func (log *Logger) Errorf(format string, args ...interface{}) {
	log.Error(fmt.Sprintf(format, args...))
}

func (log *Logger) Debug(message string) {
	if GlobalLogLevel() >= LEVEL_DEBUG {
		log.entry().Debug(message)
	}
}

func (log *Logger) Debugf(format string, args ...interface{}) {
	if GlobalLogLevel() >= LEVEL_DEBUG {
		log.entry().Debug(fmt.Sprintf(format, args...))
	}
}

// DebugLazy defers message construction until debug is known to be enabled.
func (log *Logger) DebugLazy(gen func() string) {
	if GlobalLogLevel() >= LEVEL_DEBUG {
		log.entry().Debug(gen())
	}
}

func (log *Logger) Trace(message string) {
	if GlobalLogLevel() >= LEVEL_TRACE {
		log.entry().Trace(message)
	}
}

func (log *Logger) TraceLazy(gen func() string) {
	if GlobalLogLevel() >= LEVEL_TRACE {
		log.entry().Trace(gen())
	}
}

var root = NewLogger()

func Info0(message string) { root.Info0(message) }
func Info1(message string) { root.Info1(message) }
func Info2(message string) { root.Info2(message) }
func Warn(message string)  { root.Warn(message) }
func Error(message string) { root.Error(message) }
func Debug(message string) { root.Debug(message) }
func Trace(message string) { root.Trace(message) }

func Infof0(format string, args ...interface{}) { root.Infof0(format, args...) }
func Infof1(format string, args ...interface{}) { root.Infof1(format, args...) }
func Infof2(format string, args ...interface{}) { root.Infof2(format, args...) }
func Warnf(format string, args ...interface{})  { root.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { root.Errorf(format, args...) }

func Fatalf(format string, args ...interface{}) {
	logrus.Fatalf(format, args...)
}

func Panicf(format string, args ...interface{}) {
	logrus.Panicf(format, args...)
}

func InfoMap(tags map[string]interface{}, message string) {
	logrus.WithFields(logrus.Fields(tags)).Info(message)
}

func DebugMap(tags map[string]interface{}, message string) {
	if GlobalLogLevel() >= LEVEL_DEBUG {
		logrus.WithFields(logrus.Fields(tags)).Debug(message)
	}
}
