// Package trace emits one structured JSON record per node execution edge.
// Records go to a configurable writer (stdout by default) through a zap
// JSON core; tracing is process-globally toggleable.
package trace

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var enabled atomic.Bool

func init() { enabled.Store(true) }

// SetEnabled toggles tracing output process-wide.
func SetEnabled(on bool) { enabled.Store(on) }

// Enabled reports whether tracing output is on.
func Enabled() bool { return enabled.Load() }

// Context carries guest-module attribution for nested spans.
type Context struct {
	// TracePrefix is prepended to module-local child trace keys,
	// "<stem>::<child>".
	TracePrefix string

	// ModuleFile is the guest module source path, when the span belongs
	// to a guest node.
	ModuleFile string
}

// Tracer writes node_start/node_end records.
type Tracer struct {
	log *zap.Logger
}

// New creates a tracer writing JSON lines to w.
func New(w io.Writer) *Tracer {
	cfg := zapcore.EncoderConfig{
		// Only the record fields; no timestamp/level/message framing.
		LineEnding: zapcore.DefaultLineEnding,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), zapcore.InfoLevel)
	return &Tracer{log: zap.New(core)}
}

// Default returns a tracer writing to stdout.
func Default() *Tracer { return New(os.Stdout) }

// SpanName is op alone when traceKey is empty, "op(traceKey)" otherwise.
func SpanName(op, traceKey string) string {
	if traceKey == "" {
		return op
	}
	return op + "(" + traceKey + ")"
}

// PrefixedTraceKey joins a module trace prefix with a child trace key.
func PrefixedTraceKey(prefix, child string) string {
	switch {
	case prefix == "":
		return child
	case child == "":
		return prefix
	default:
		return prefix + "::" + child
	}
}

// DeriveTracePrefix derives a module's trace prefix from its file stem:
// the base name with its extension stripped.
func DeriveTracePrefix(modulePath string) string {
	if modulePath == "" {
		return ""
	}
	base := filepath.Base(modulePath)
	if ext := filepath.Ext(base); ext != "" && len(ext) < len(base) {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func (t *Tracer) common(event, planName, nodeID, op, traceKey string, tc *Context) []zap.Field {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("plan_name", planName),
		zap.String("node_id", nodeID),
		zap.String("op", op),
		zap.String("span_name", SpanName(op, traceKey)),
	}
	if traceKey != "" {
		fields = append(fields, zap.String("trace_key", traceKey))
	}
	if tc != nil {
		if tc.TracePrefix != "" {
			fields = append(fields, zap.String("trace_prefix", tc.TracePrefix))
		}
		if tc.ModuleFile != "" {
			fields = append(fields, zap.String("module_file", tc.ModuleFile))
		}
	}
	return fields
}

// NodeStart records the start of a node execution.
func (t *Tracer) NodeStart(planName, nodeID, op, traceKey string, tc *Context) {
	if t == nil || !Enabled() {
		return
	}
	t.log.Info("", t.common("node_start", planName, nodeID, op, traceKey, tc)...)
}

// NodeEnd records the end of a node execution with timing and row counts.
func (t *Tracer) NodeEnd(planName, nodeID, op, traceKey string, tc *Context,
	durationMS float64, rowsIn, rowsOut int, errStr string) {
	if t == nil || !Enabled() {
		return
	}
	fields := t.common("node_end", planName, nodeID, op, traceKey, tc)
	fields = append(fields,
		zap.Float64("duration_ms", durationMS),
		zap.Int("rows_in", rowsIn),
		zap.Int("rows_out", rowsOut),
	)
	if errStr != "" {
		fields = append(fields, zap.String("error", errStr))
	}
	t.log.Info("", fields...)
}

// CompileWarning records a soft-limit breach from the plan compiler.
func (t *Tracer) CompileWarning(planName, warning string) {
	if t == nil || !Enabled() {
		return
	}
	t.log.Info("",
		zap.String("event", "compile_warning"),
		zap.String("plan_name", planName),
		zap.String("warning", warning),
	)
}
