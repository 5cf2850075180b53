// Package logger is the server's leveled log sink. Lines are formatted as
//
//	2006-01-02 15:04:05.000000 [info]: message
//
// and written either synchronously or through a bounded queue drained by a
// single writer goroutine. File output rotates daily and every MaxLines lines.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"github.com/xiaqy71/myWebServer/core/buffer"
)

// Level is a log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError

	levelOff
)

const (
	// DefaultMaxLines is the rotation threshold when Options.MaxLines is 0.
	DefaultMaxLines = 50000

	timeLayout = "2006-01-02 15:04:05.000000"
	dayLayout  = "2006_01_02"
)

// ErrInvalidLevel is returned by ParseLevel.
var ErrInvalidLevel = errors.New("logger: invalid level")

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "off"
	}
}

// ParseLevel accepts a level name or its number (0 debug .. 3 error).
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(LevelDebug) || n > int(LevelError) {
			return LevelInfo, fmt.Errorf("%w: %d", ErrInvalidLevel, n)
		}
		return Level(n), nil
	}
	switch s {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

var consoleTitles = map[Level]string{
	LevelDebug: color.New(color.FgCyan).Sprint("[debug]"),
	LevelInfo:  color.New(color.FgGreen).Sprint("[info]"),
	LevelWarn:  color.New(color.FgYellow).Sprint("[warn]"),
	LevelError: color.New(color.FgRed).Sprint("[error]"),
}

var plainTitles = map[Level]string{
	LevelDebug: "[debug]",
	LevelInfo:  "[info]",
	LevelWarn:  "[warn]",
	LevelError: "[error]",
}

// Options configures a Logger.
type Options struct {
	// Dir is the log directory. Empty means console only.
	Dir string
	// Suffix of log files, ".log" by default.
	Suffix string
	Level  Level
	// QueueSize > 0 enables asynchronous writing through a BlockQueue.
	QueueSize int
	// MaxLines per file before a numbered file is started.
	MaxLines int
	// Console receives output when Dir is empty. Defaults to stdout.
	Console io.Writer
}

// Logger is safe for concurrent use.
type Logger struct {
	level atomic.Int32
	opts  Options

	mu     sync.Mutex
	buf    *buffer.Buffer
	out    io.Writer
	file   *os.File
	titles map[Level]string
	day    string
	lines  int
	closed bool

	queue *BlockQueue
	done  chan struct{}

	now func() time.Time
}

// New creates a Logger. With a non-empty Dir the directory is created and
// today's file opened for appending.
func New(opts Options) (*Logger, error) {
	return newLogger(opts, time.Now)
}

func newLogger(opts Options, now func() time.Time) (*Logger, error) {
	if opts.Suffix == "" {
		opts.Suffix = ".log"
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}

	l := &Logger{
		opts: opts,
		buf:  buffer.New(256),
		now:  now,
	}
	l.level.Store(int32(opts.Level))

	if opts.Dir == "" {
		l.out = opts.Console
		if l.out == nil {
			l.out = color.Output
		}
		l.titles = consoleTitles
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create dir: %w", err)
		}
		l.titles = plainTitles
		l.day = l.now().Format(dayLayout)
		if err := l.openFile(l.fileName(0)); err != nil {
			return nil, err
		}
	}

	if opts.QueueSize > 0 {
		l.queue = NewBlockQueue(opts.QueueSize)
		l.done = make(chan struct{})
		go l.drain()
	}
	return l, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	l := &Logger{}
	l.level.Store(int32(levelOff))
	return l
}

// Level returns the current threshold.
func (l *Logger) Level() Level { return Level(l.level.Load()) }

// SetLevel changes the threshold.
func (l *Logger) SetLevel(level Level) { l.level.Store(int32(level)) }

// Enabled reports whether lines at level are written.
func (l *Logger) Enabled(level Level) bool { return level >= l.Level() }

func (l *Logger) Debugf(format string, args ...any) { l.Write(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.Write(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.Write(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.Write(LevelError, format, args...) }

// Write formats one line at level.
func (l *Logger) Write(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	now := l.now()
	l.rotate(now)

	l.buf.AppendString(now.Format(timeLayout))
	l.buf.AppendString(" ")
	l.buf.AppendString(l.titles[level])
	l.buf.AppendString(": ")
	fmt.Fprintf(l.buf, format, args...)
	l.buf.AppendString("\n")
	line := l.buf.RetrieveAllString()

	if l.queue != nil && l.queue.TryPush(line) {
		return
	}
	// Queue full: write queued lines first so the order is kept.
	l.drainLocked()
	l.writeLocked(line)
}

// Flush writes every queued line and syncs the file.
func (l *Logger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.drainLocked()
	if l.file != nil {
		l.file.Sync()
	}
}

// Close drains the queue, stops the writer goroutine and closes the file.
func (l *Logger) Close() error {
	if l.queue != nil {
		l.queue.Close()
		<-l.done
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.drainLocked()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) drain() {
	defer close(l.done)
	for l.queue.Wait() {
		l.mu.Lock()
		if line, ok := l.queue.TryPop(); ok {
			l.writeLocked(line)
		}
		l.mu.Unlock()
	}
}

func (l *Logger) drainLocked() {
	if l.queue == nil {
		return
	}
	for {
		line, ok := l.queue.TryPop()
		if !ok {
			return
		}
		l.writeLocked(line)
	}
}

func (l *Logger) writeLocked(line string) {
	if l.out != nil {
		io.WriteString(l.out, line)
	}
}

// rotate switches files on a new day or every MaxLines lines.
func (l *Logger) rotate(now time.Time) {
	if l.file == nil {
		return
	}
	l.lines++

	day := now.Format(dayLayout)
	switch {
	case day != l.day:
		l.drainLocked()
		l.day = day
		l.lines = 1
		l.reopen(l.fileName(0))
	case l.lines > 1 && (l.lines-1)%l.opts.MaxLines == 0:
		l.drainLocked()
		l.reopen(l.fileName((l.lines - 1) / l.opts.MaxLines))
	}
}

func (l *Logger) reopen(name string) {
	old := l.file
	if err := l.openFile(name); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return
	}
	old.Close()
}

func (l *Logger) openFile(name string) error {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logger: open %s: %w", name, err)
	}
	l.file = f
	l.out = f
	return nil
}

func (l *Logger) fileName(n int) string {
	if n == 0 {
		return filepath.Join(l.opts.Dir, l.day+l.opts.Suffix)
	}
	return filepath.Join(l.opts.Dir, fmt.Sprintf("%s-%d%s", l.day, n, l.opts.Suffix))
}
