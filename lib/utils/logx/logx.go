package logx

import (
	"fmt"
	"io"
	"strings"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	NOTICE
	WARN
	ERROR
	CRITICAL
	LevelCount
)

var levelNames = [LevelCount]string{
	DEBUG:    "debug",
	INFO:     "info",
	NOTICE:   "notice",
	WARN:     "warn",
	ERROR:    "error",
	CRITICAL: "critical",
}

func (l Level) String() string {
	if l >= 0 && l < LevelCount {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel accepts level names as printed by Level.String, case-insensitive.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return WARN, nil
	}
	for i, n := range levelNames {
		if n == s {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// LoggerX is shared sink which knows about sections.
type LoggerX interface {
	Level() Level
	LogPrintX(section string, lvl Level, v ...interface{})
	LogPrintlnX(section string, lvl Level, v ...interface{})
	LogPrintfX(section string, lvl Level, fmt string, v ...interface{})
	// LockWriteX prepares raw write of message; if true is returned,
	// caller must write message and then call Close.
	LockWriteX(section string, lvl Level) bool
	io.WriteCloser
}

// Logger is view of LoggerX bound to single section.
type Logger interface {
	Level() Level
	LogPrint(lvl Level, v ...interface{})
	LogPrintln(lvl Level, v ...interface{})
	LogPrintf(lvl Level, fmt string, v ...interface{})
	LockWrite(lvl Level) bool
	io.WriteCloser
}

var _ Logger = LogToX{}

type LogToX struct {
	section string
	logx    LoggerX
}

func (l LogToX) Level() Level {
	return l.logx.Level()
}
func (l LogToX) LogPrint(lvl Level, v ...interface{}) {
	l.logx.LogPrintX(l.section, lvl, v...)
}
func (l LogToX) LogPrintln(lvl Level, v ...interface{}) {
	l.logx.LogPrintlnX(l.section, lvl, v...)
}
func (l LogToX) LogPrintf(lvl Level, fmt string, v ...interface{}) {
	l.logx.LogPrintfX(l.section, lvl, fmt, v...)
}
func (l LogToX) LockWrite(lvl Level) bool {
	return l.logx.LockWriteX(l.section, lvl)
}
func (l LogToX) Close() error {
	return l.logx.Close()
}
func (l LogToX) Write(b []byte) (int, error) {
	return l.logx.Write(b)
}

// NewLogToX binds section to logx. nil logx yields discarding logger.
func NewLogToX(logx LoggerX, section string) LogToX {
	if logx == nil {
		logx = Discard
	}
	return LogToX{section: section, logx: logx}
}

var _ Logger = (*LogToXLevel)(nil)

// LogToXLevel is like LogToX but with its own, stricter, level.
type LogToXLevel struct {
	section string
	logx    LoggerX
	lw      io.WriteCloser
	level   Level
}

func (l *LogToXLevel) Level() Level {
	return l.level
}
func (l *LogToXLevel) LogPrint(lvl Level, v ...interface{}) {
	if lvl >= l.level {
		l.logx.LogPrintX(l.section, lvl, v...)
	}
}
func (l *LogToXLevel) LogPrintln(lvl Level, v ...interface{}) {
	if lvl >= l.level {
		l.logx.LogPrintlnX(l.section, lvl, v...)
	}
}
func (l *LogToXLevel) LogPrintf(lvl Level, fmt string, v ...interface{}) {
	if lvl >= l.level {
		l.logx.LogPrintfX(l.section, lvl, fmt, v...)
	}
}
func (l *LogToXLevel) LockWrite(lvl Level) bool {
	if lvl >= l.level && l.logx.LockWriteX(l.section, lvl) {
		l.lw = l.logx
		return true
	}
	l.lw = nilLogWriter{}
	return false
}
func (l *LogToXLevel) Close() error {
	return l.lw.Close()
}
func (l *LogToXLevel) Write(b []byte) (int, error) {
	return l.lw.Write(b)
}

func NewLogToXLevel(logx LoggerX, section string, l Level) *LogToXLevel {
	if logx == nil {
		logx = Discard
	}
	if dl := logx.Level(); dl > l {
		l = dl
	}
	return &LogToXLevel{section: section, logx: logx, level: l, lw: nilLogWriter{}}
}

var _ io.WriteCloser = nilLogWriter{}

type nilLogWriter struct{}

func (nilLogWriter) Close() error {
	return nil
}
func (nilLogWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

// NewWriteToLog returns writer for raw multi-line message.
// Close must be called after writing.
func NewWriteToLog(log Logger, lvl Level) io.WriteCloser {
	if log.LockWrite(lvl) {
		return log
	}
	return nilLogWriter{}
}

// Discard drops everything.
var Discard LoggerX = discardLoggerX{}

type discardLoggerX struct{ nilLogWriter }

func (discardLoggerX) Level() Level {
	return LevelCount
}
func (discardLoggerX) LogPrintX(string, Level, ...interface{})          {}
func (discardLoggerX) LogPrintlnX(string, Level, ...interface{})        {}
func (discardLoggerX) LogPrintfX(string, Level, string, ...interface{}) {}
func (discardLoggerX) LockWriteX(string, Level) bool {
	return false
}
