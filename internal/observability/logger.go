package observability

import (
	"fmt"
	"log"
	"strings"

	"github.com/fatih/color"
)

// LogLevel is a two-level severity gate: info always shown, debug gated.
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelDebug
)

var (
	tagInfo  = color.New(color.FgGreen).SprintFunc()
	tagDebug = color.New(color.FgCyan).SprintFunc()
	tagFatal = color.New(color.FgRed, color.Bold).SprintFunc()
)

// Logger gates on level and colorizes every line's leading tag with
// fatih/color, whether that tag is a severity ("INFO"/"DEBUG") or a
// dispatch phase ("CONNECT"/"SEND"/"CPP"/"COMPILE"). Every public method
// below funnels through the same emit call so the coloring rule lives in
// one place instead of being layered on top afterward.
type Logger struct {
	level LogLevel
}

// NewLogger creates a new logger with the specified level string
// ("debug" or "info", default "info").
func NewLogger(levelStr string) *Logger {
	level := LogLevelInfo
	if strings.ToLower(levelStr) == "debug" {
		level = LogLevelDebug
	}
	return &Logger{level: level}
}

// emit gates on minLevel, paints tag (if any), and prints the result.
func (l *Logger) emit(minLevel LogLevel, tag string, paint func(...interface{}) string, msg string) {
	if l.level < minLevel {
		return
	}
	if tag != "" {
		msg = paint(tag) + " " + msg
	}
	log.Print(msg)
}

func (l *Logger) Info(v ...interface{}) {
	l.emit(LogLevelInfo, "INFO", tagInfo, fmt.Sprint(v...))
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.emit(LogLevelInfo, "INFO", tagInfo, fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(v ...interface{}) {
	l.emit(LogLevelDebug, "DEBUG", tagDebug, fmt.Sprint(v...))
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.emit(LogLevelDebug, "DEBUG", tagDebug, fmt.Sprintf(format, v...))
}

func (l *Logger) Fatal(v ...interface{}) {
	l.emit(LogLevelInfo, "FATAL", tagFatal, fmt.Sprint(v...))
	log.Fatal(v...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.emit(LogLevelInfo, "FATAL", tagFatal, msg)
	log.Fatal(msg)
}

// Phase logs a colorized one-liner for a dispatch phase transition:
// [PHASE] hostname input.c (LOCAL|REMOTE). It shares emit with every
// other level instead of assembling its own colored string beforehand.
func (l *Logger) Phase(phase Phase, hostname, input string, locality Locality) {
	l.emit(LogLevelInfo, phase.String(), phaseColor(phase), hostname+" "+decorateLocality(input, locality))
}

func phaseColor(p Phase) func(a ...interface{}) string {
	switch p {
	case PhaseConnect:
		return color.New(color.FgCyan).SprintFunc()
	case PhaseSend:
		return color.New(color.FgYellow).SprintFunc()
	case PhaseCPP:
		return color.New(color.FgMagenta).SprintFunc()
	case PhaseCompile:
		return color.New(color.FgGreen).SprintFunc()
	default:
		return color.New(color.FgWhite).SprintFunc()
	}
}

func decorateLocality(input string, locality Locality) string {
	if input == "" {
		return "(" + locality.String() + ")"
	}
	return input + " (" + locality.String() + ")"
}

var global *Logger

// InitializeLogger sets the process-wide logger instance used by the
// package-level LogInfo/LogDebug helpers.
func InitializeLogger(levelStr string) {
	global = NewLogger(levelStr)
}

func LogInfo(v ...interface{}) {
	if global != nil {
		global.Info(v...)
	} else {
		log.Print(v...)
	}
}

func LogInfof(format string, v ...interface{}) {
	if global != nil {
		global.Infof(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

func LogDebug(v ...interface{}) {
	if global != nil {
		global.Debug(v...)
	}
}

func LogDebugf(format string, v ...interface{}) {
	if global != nil {
		global.Debugf(format, v...)
	}
}
