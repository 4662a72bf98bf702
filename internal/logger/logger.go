package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// LogLevel represents the severity level of a log message
type LogLevel int

// Log levels
const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// levelColors maps log levels to ANSI color codes
var levelColors = [...]string{
	DEBUG: "\033[36m", // Cyan
	INFO:  "\033[32m", // Green
	WARN:  "\033[33m", // Yellow
	ERROR: "\033[31m", // Red
	FATAL: "\033[35m", // Magenta
}

// levelPrefixes maps log levels to text prefixes
var levelPrefixes = [...]string{
	DEBUG: "DEBUG",
	INFO:  "INFO ",
	WARN:  "WARN ",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// sink is the output shared by a logger and every child created with With.
type sink struct {
	mu        sync.Mutex
	level     LogLevel
	logger    *log.Logger
	file      *os.File
	useColors bool
	exit      func(code int)
}

// Logger handles logging for one component of the engine
type Logger struct {
	out       *sink
	component string
}

// ParseLevel converts a level name to a LogLevel, defaulting to INFO
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// NewLogger creates a new console logger with the specified log level
func NewLogger(levelStr string) *Logger {
	return &Logger{
		out: &sink{
			level:     ParseLevel(levelStr),
			logger:    log.New(os.Stdout, "", 0), // prefix is formatted manually
			useColors: term.IsTerminal(int(os.Stdout.Fd())),
			exit:      os.Exit,
		},
	}
}

// NewFileLogger creates a new logger that writes to a file
func NewFileLogger(levelStr, filePath string) (*Logger, error) {
	file, err := openLogFile(filePath)
	if err != nil {
		return nil, err
	}

	l := NewLogger(levelStr)
	l.out.logger.SetOutput(file)
	l.out.file = file
	l.out.useColors = false
	return l, nil
}

// NewMultiLogger creates a logger that writes to both console and file
func NewMultiLogger(levelStr, filePath string) (*Logger, error) {
	file, err := openLogFile(filePath)
	if err != nil {
		return nil, err
	}

	l := NewLogger(levelStr)
	l.out.logger.SetOutput(io.MultiWriter(os.Stdout, file))
	l.out.file = file
	return l, nil
}

func openLogFile(filePath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// With returns a child logger tagging every message with the component name.
// The child shares output, level and color settings with its parent.
func (l *Logger) With(component string) *Logger {
	name := component
	if l.component != "" {
		name = l.component + "/" + component
	}
	return &Logger{out: l.out, component: name}
}

// emit writes one message; depth is the caller frame to report.
func (l *Logger) emit(level LogLevel, depth int, msg string) {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}

	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		file = "unknown"
		line = 0
	}

	now := time.Now().Format("2006/01/02 15:04:05")
	prefix := fmt.Sprintf("%s [%s] %s:%d:", now, levelPrefixes[level], filepath.Base(file), line)
	if s.useColors {
		prefix = levelColors[level] + prefix + "\033[0m"
	}
	if l.component != "" {
		msg = "[" + l.component + "] " + msg
	}

	s.logger.Println(prefix, msg)

	if level == FATAL {
		if s.file != nil {
			s.file.Close()
			s.file = nil
		}
		s.exit(1)
	}
}

func (l *Logger) enabled(level LogLevel) bool {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return level >= l.out.level
}

// Debug logs a debug message
func (l *Logger) Debug(v ...interface{}) {
	if l.enabled(DEBUG) {
		l.emit(DEBUG, 2, fmt.Sprint(v...))
	}
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled(DEBUG) {
		l.emit(DEBUG, 2, fmt.Sprintf(format, v...))
	}
}

// Info logs an info message
func (l *Logger) Info(v ...interface{}) {
	l.emit(INFO, 2, fmt.Sprint(v...))
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.emit(INFO, 2, fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func (l *Logger) Warn(v ...interface{}) {
	l.emit(WARN, 2, fmt.Sprint(v...))
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.emit(WARN, 2, fmt.Sprintf(format, v...))
}

// Error logs an error message
func (l *Logger) Error(v ...interface{}) {
	l.emit(ERROR, 2, fmt.Sprint(v...))
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.emit(ERROR, 2, fmt.Sprintf(format, v...))
}

// Fatal logs a fatal message and exits the program
func (l *Logger) Fatal(v ...interface{}) {
	l.emit(FATAL, 2, fmt.Sprint(v...))
}

// Fatalf logs a formatted fatal message and exits the program
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.emit(FATAL, 2, fmt.Sprintf(format, v...))
}

// SetLevel sets the log level
func (l *Logger) SetLevel(levelStr string) {
	l.out.mu.Lock()
	l.out.level = ParseLevel(levelStr)
	l.out.mu.Unlock()
}

// SetOutput sets the output writer for the logger
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.logger.SetOutput(w)
	l.out.mu.Unlock()
}

// EnableColors enables or disables colored output
func (l *Logger) EnableColors(enable bool) {
	l.out.mu.Lock()
	l.out.useColors = enable
	l.out.mu.Unlock()
}

// Close closes the logger's file if it exists
func (l *Logger) Close() {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.file != nil {
		l.out.file.Close()
		l.out.file = nil
	}
}

// Discard returns a logger that drops everything; handy for tests.
func Discard() *Logger {
	l := NewLogger("fatal")
	l.out.logger.SetOutput(io.Discard)
	l.out.useColors = false
	l.out.exit = func(int) {}
	return l
}
