package filelogger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"

	"newsbase/lib/utils/logx"
)

type UseColor int

const (
	ColorAuto UseColor = iota
	ColorOn
	ColorOff
)

type logLevels [logx.LevelCount][]byte

var levelstrings = [2]logLevels{
	// uncolored
	{
		logx.DEBUG:    []byte("   DEBUG"),
		logx.INFO:     []byte("    INFO"),
		logx.NOTICE:   []byte("  NOTICE"),
		logx.WARN:     []byte(" WARNING"),
		logx.ERROR:    []byte("   ERROR"),
		logx.CRITICAL: []byte("CRITICAL"),
	},
	// colored
	{
		logx.DEBUG:    []byte("\033[37m   DEBUG\033[0m"),
		logx.INFO:     []byte("\033[34m    INFO\033[0m"),
		logx.NOTICE:   []byte("\033[32m  NOTICE\033[0m"),
		logx.WARN:     []byte("\033[33m WARNING\033[0m"),
		logx.ERROR:    []byte("\033[31m   ERROR\033[0m"),
		logx.CRITICAL: []byte("\033[35mCRITICAL\033[0m"),
	},
}

var formatstrings = [2]string{
	// uncolored
	" %s [%s] ",
	// colored
	" %s [\033[36m%s\033[0m] ",
}

type day struct {
	Y int
	M time.Month
	D int
}

// lineWriter prefixes every line of message with header built by prepareWrite.
type lineWriter struct {
	w   *bufio.Writer
	p   bytes.Buffer // prefix of current message
	nl  bool         // at start of line
	err error
}

func (s *lineWriter) reset() {
	s.p.Reset()
	s.nl = true
}

func (s *lineWriter) Write(b []byte) (n int, err error) {
	for len(b) != 0 {
		if s.nl {
			s.w.Write(s.p.Bytes())
			s.nl = false
		}
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			s.w.Write(b)
			n += len(b)
			break
		}
		s.w.Write(b[:i+1])
		n += i + 1
		b = b[i+1:]
		s.nl = true
	}
	return n, nil
}

func (s *lineWriter) finish() {
	if !s.nl {
		s.w.WriteByte('\n')
		s.nl = true
	}
	s.err = s.w.Flush()
}

var _ logx.LoggerX = (*FileLogger)(nil)

type FileLogger struct {
	w lineWriter
	d day
	l sync.Mutex
	t uint
	m logx.Level
}

func NewFileLogger(f *os.File, logLevel logx.Level, c UseColor) (*FileLogger, error) {
	if f == nil {
		return nil, fmt.Errorf("nil file")
	}
	l := &FileLogger{m: logLevel}
	fd := f.Fd()
	term := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	if c == ColorOn || (c == ColorAuto && term) {
		l.w.w = bufio.NewWriter(colorable.NewColorable(f))
		l.t = 1
	} else {
		l.w.w = bufio.NewWriter(f)
	}
	return l, nil
}

// NewWriterLogger logs to arbitrary writer, uncolored.
func NewWriterLogger(w io.Writer, logLevel logx.Level) *FileLogger {
	l := &FileLogger{m: logLevel}
	l.w.w = bufio.NewWriter(w)
	return l
}

func (l *FileLogger) Level() logx.Level {
	return l.m
}

func (l *FileLogger) writeTime(t time.Time) {
	var d day
	d.Y, d.M, d.D = t.Date()
	h, m, s := t.Clock()
	if l.t != 0 {
		if l.d != d {
			l.d = d
			fmt.Fprintf(l.w.w, "\033[1mdate is %d-%02d-%02d\033[0m\n", d.Y, d.M, d.D)
		}
		fmt.Fprintf(&l.w.p, "%02d:%02d:%02d", h, m, s)
	} else {
		fmt.Fprintf(&l.w.p, "%d-%02d-%02d %02d:%02d:%02d", d.Y, d.M, d.D, h, m, s)
	}
}

func (l *FileLogger) prepareWrite(section string, lvl logx.Level, t time.Time) {
	l.w.reset()
	l.writeTime(t)
	fmt.Fprintf(&l.w.p, formatstrings[l.t], levelstrings[l.t][lvl], section)
}

func (l *FileLogger) LogPrintX(section string, lvl logx.Level, v ...interface{}) {
	if l.m > lvl {
		return
	}

	t := time.Now().UTC()

	l.l.Lock()
	defer l.l.Unlock()

	l.prepareWrite(section, lvl, t)

	fmt.Fprint(&l.w, v...)
	l.w.finish()
}

func (l *FileLogger) LogPrintlnX(section string, lvl logx.Level, v ...interface{}) {
	if l.m > lvl {
		return
	}

	t := time.Now().UTC()

	l.l.Lock()
	defer l.l.Unlock()

	l.prepareWrite(section, lvl, t)

	fmt.Fprintln(&l.w, v...)
	l.w.finish()
}

func (l *FileLogger) LogPrintfX(section string, lvl logx.Level, fmts string, v ...interface{}) {
	if l.m > lvl {
		return
	}

	t := time.Now().UTC()

	l.l.Lock()
	defer l.l.Unlock()

	l.prepareWrite(section, lvl, t)

	fmt.Fprintf(&l.w, fmts, v...)
	l.w.finish()
}

func (l *FileLogger) LockWriteX(section string, lvl logx.Level) bool {
	if l.m > lvl {
		return false
	}

	t := time.Now().UTC()
	l.l.Lock()
	l.prepareWrite(section, lvl, t)

	return true
}

// Close finishes message started by LockWriteX.
func (l *FileLogger) Close() error {
	l.w.finish()
	err := l.w.err
	l.l.Unlock()
	return err
}

func (l *FileLogger) Write(b []byte) (int, error) {
	return l.w.Write(b)
}
