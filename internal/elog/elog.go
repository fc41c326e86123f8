// Package elog is a small structured, leveled logger modeled on the
// gravwell ingest/log package: level-gated output, KV/KVErr structured
// fields built on github.com/crewjam/rfc5424 syslog structured data.
package elog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "OFF"
	}
}

// ParseLevel parses the level names accepted on the command line
// (case-insensitive); ok is false for anything unrecognized.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(s) {
	case "OFF":
		return OFF, true
	case "DEBUG":
		return DEBUG, true
	case "INFO":
		return INFO, true
	case "WARN", "WARNING":
		return WARN, true
	case "ERROR":
		return ERROR, true
	case "CRITICAL", "CRIT":
		return CRITICAL, true
	default:
		return OFF, false
	}
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.Debug
	case INFO:
		return rfc5424.Info
	case WARN:
		return rfc5424.Warning
	case ERROR:
		return rfc5424.Error
	case CRITICAL:
		return rfc5424.Crit
	default:
		return rfc5424.Info
	}
}

// KV builds one structured-data parameter.
func KV(name string, value interface{}) rfc5424.SDParam {
	switch v := value.(type) {
	case string:
		return rfc5424.SDParam{Name: name, Value: v}
	default:
		return rfc5424.SDParam{Name: name, Value: fmt.Sprintf("%v", v)}
	}
}

// KVErr builds the conventional "error" structured-data parameter.
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}

// Logger is a minimal level-gated structured logger over an io.Writer.
type Logger struct {
	mu       sync.Mutex
	wtr      io.Writer
	lvl      Level
	appname  string
	hostname string
}

// NewStderr returns a Logger writing to os.Stderr at INFO level.
func NewStderr(appname string) *Logger {
	host, _ := os.Hostname()
	return &Logger{wtr: os.Stderr, lvl: INFO, appname: appname, hostname: host}
}

// New returns a Logger writing to wtr at INFO level.
func New(wtr io.Writer, appname string) *Logger {
	host, _ := os.Hostname()
	return &Logger{wtr: wtr, lvl: INFO, appname: appname, hostname: host}
}

func (l *Logger) SetLevel(lvl Level) { l.mu.Lock(); l.lvl = lvl; l.mu.Unlock() }

func (l *Logger) enabled(lvl Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lvl >= l.lvl && l.lvl != OFF
}

func (l *Logger) output(lvl Level, msg string, sds ...rfc5424.SDParam) {
	if !l.enabled(lvl) {
		return
	}
	m := rfc5424.Message{
		Priority:  lvl.priority(),
		Timestamp: time.Now().UTC(),
		Hostname:  l.hostname,
		AppName:   l.appname,
		MessageID: lvl.String(),
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: "gw@1", Parameters: sds}}
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return
	}
	l.mu.Lock()
	l.wtr.Write(append(b, '\n'))
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam)    { l.output(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)     { l.output(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)     { l.output(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam)    { l.output(ERROR, msg, sds...) }
func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) { l.output(CRITICAL, msg, sds...) }
