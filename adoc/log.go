package adoc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// locationKey is the structured logging key carrying a `path: line N` position.
const locationKey = "source_location"

// Severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARN"
	case SeverityError:
		return "ERROR"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Diagnostic is a recoverable condition found while parsing.
type Diagnostic struct {
	Severity Severity
	Location string
	Msg      string
}

func (d Diagnostic) Error() string {
	if len(d.Location) == 0 {
		return d.Msg
	}
	return fmt.Sprintf("%s: %s", d.Location, d.Msg)
}

// diagnostics collects entries written through the logging seam.
type diagnostics struct {
	mu      sync.Mutex
	entries []Diagnostic
}

func (d *diagnostics) add(diag Diagnostic) {
	d.mu.Lock()
	d.entries = append(d.entries, diag)
	d.mu.Unlock()
}

func (d *diagnostics) all() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Diagnostic(nil), d.entries...)
}

// recordingCore is a zapcore.Core that keeps every entry at info level or
// above as a Diagnostic, so callers can inspect what was reported.
type recordingCore struct {
	zapcore.LevelEnabler
	sink   *diagnostics
	fields []zapcore.Field
}

func (c *recordingCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &recordingCore{
		LevelEnabler: c.LevelEnabler,
		sink:         c.sink,
		fields:       append(append([]zapcore.Field(nil), c.fields...), fields...),
	}
	return clone
}

func (c *recordingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *recordingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	d := Diagnostic{Msg: ent.Message}

	switch {
	case ent.Level >= zapcore.ErrorLevel:
		d.Severity = SeverityError
	case ent.Level == zapcore.WarnLevel:
		d.Severity = SeverityWarning
	default:
		d.Severity = SeverityInfo
	}

	for _, f := range append(append([]zapcore.Field(nil), c.fields...), fields...) {
		if f.Key == locationKey && f.Type == zapcore.StringType {
			d.Location = f.String
		}
	}

	c.sink.add(d)
	return nil
}

func (c *recordingCore) Sync() error {
	return nil
}

// newRecordingLogger tees base into a core that records diagnostics into sink.
func newRecordingLogger(base *zap.SugaredLogger, sink *diagnostics) *zap.SugaredLogger {
	if base == nil {
		base = zap.NewNop().Sugar()
	}
	rec := &recordingCore{LevelEnabler: zapcore.InfoLevel, sink: sink}
	core := zapcore.NewTee(base.Desugar().Core(), rec)
	return zap.New(core).Sugar()
}

// SyntaxError converts the diagnostic to the `file:line:col` form. The
// column is always 1, positions are tracked per line.
func (d Diagnostic) SyntaxError() *SyntaxError {
	se := &SyntaxError{Filename: "<stdin>", Column: 1, Msg: d.Msg}
	if i := strings.LastIndex(d.Location, ": line "); i >= 0 {
		se.Filename = d.Location[:i]
		se.Line, _ = strconv.Atoi(d.Location[i+len(": line "):])
	}
	return se
}
