package applog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logrus adapts a *logrus.Logger to the Logger interface.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus builds a Logrus logger writing to w at the given level
// ("debug", "info", "warn", "error") and format ("text" or "json").
func NewLogrus(w io.Writer, level, format string) *Logrus {
	l := logrus.New()
	l.SetOutput(w)
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &Logrus{entry: logrus.NewEntry(l)}
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l *Logrus) Debug(msg string, kv ...any) { l.entry.WithFields(fields(kv)).Debug(msg) }
func (l *Logrus) Info(msg string, kv ...any)   { l.entry.WithFields(fields(kv)).Info(msg) }
func (l *Logrus) Warn(msg string, kv ...any)   { l.entry.WithFields(fields(kv)).Warn(msg) }
func (l *Logrus) Error(msg string, kv ...any)  { l.entry.WithFields(fields(kv)).Error(msg) }
