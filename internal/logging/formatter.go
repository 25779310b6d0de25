// Package logging provides the logrus setup shared by the gateway:
// the log line formatter and gin middleware that routes access logs and
// panic recovery through logrus.
package logging

import (
	"bytes"
	"fmt"
	"os"
	"path"

	log "github.com/sirupsen/logrus"
)

// Formatter renders log entries as
// [timestamp] [level] [file:line] message.
type Formatter struct{}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	if entry.Caller != nil {
		fmt.Fprintf(b, "[%s] [%s] [%s:%d] %s", timestamp, entry.Level, path.Base(entry.Caller.File), entry.Caller.Line, entry.Message)
	} else {
		fmt.Fprintf(b, "[%s] [%s] %s", timestamp, entry.Level, entry.Message)
	}
	for k, v := range entry.Data {
		fmt.Fprintf(b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Setup configures the global logrus logger for the gateway process.
func Setup(debug bool) {
	log.SetOutput(os.Stdout)
	log.SetReportCaller(true)
	log.SetFormatter(&Formatter{})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
