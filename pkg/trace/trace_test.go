package trace

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func record(t *testing.T, line string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("record is not JSON: %v\n%s", err, line)
	}
	return out
}

func TestSpanName(t *testing.T) {
	if got := SpanName("core:merge", ""); got != "core:merge" {
		t.Fatalf("got %q", got)
	}
	if got := SpanName("core:merge", "main"); got != "core:merge(main)" {
		t.Fatalf("got %q", got)
	}
}

func TestPrefixedTraceKey(t *testing.T) {
	cases := []struct{ prefix, child, want string }{
		{"", "child", "child"},
		{"boost", "", "boost"},
		{"boost", "child", "boost::child"},
	}
	for _, tc := range cases {
		if got := PrefixedTraceKey(tc.prefix, tc.child); got != tc.want {
			t.Errorf("PrefixedTraceKey(%q, %q) = %q, want %q", tc.prefix, tc.child, got, tc.want)
		}
	}
}

func TestDeriveTracePrefix(t *testing.T) {
	cases := []struct{ path, want string }{
		{"", ""},
		{"boost.star", "boost"},
		{"modules/rank/boost.star", "boost"},
		{"noext", "noext"},
	}
	for _, tc := range cases {
		if got := DeriveTracePrefix(tc.path); got != tc.want {
			t.Errorf("DeriveTracePrefix(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestNodeRecords(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf)

	tc := &Context{TracePrefix: "boost", ModuleFile: "modules/boost.star"}
	tr.NodeStart("plan1", "n1", "star:module", "rank", tc)
	tr.NodeEnd("plan1", "n1", "star:module", "rank", tc, 1.25, 10, 8, "boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}

	start := record(t, lines[0])
	if start["event"] != "node_start" || start["plan_name"] != "plan1" ||
		start["node_id"] != "n1" || start["op"] != "star:module" {
		t.Fatalf("bad start record: %v", start)
	}
	if start["span_name"] != "star:module(rank)" {
		t.Fatalf("span_name %v", start["span_name"])
	}
	if start["trace_prefix"] != "boost" || start["module_file"] != "modules/boost.star" {
		t.Fatalf("guest attribution missing: %v", start)
	}

	end := record(t, lines[1])
	if end["duration_ms"] != 1.25 || end["rows_in"] != float64(10) || end["rows_out"] != float64(8) {
		t.Fatalf("bad end record: %v", end)
	}
	if end["error"] != "boom" {
		t.Fatalf("error %v", end["error"])
	}
}

func TestTraceKeyOmittedWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf)
	tr.NodeStart("p", "n", "core:sourcer", "", nil)

	rec := record(t, strings.TrimSpace(buf.String()))
	if _, present := rec["trace_key"]; present {
		t.Fatal("empty trace_key must be omitted")
	}
	if rec["span_name"] != "core:sourcer" {
		t.Fatalf("span_name %v", rec["span_name"])
	}
}

func TestGlobalToggle(t *testing.T) {
	defer SetEnabled(true)

	var buf bytes.Buffer
	tr := New(&buf)

	SetEnabled(false)
	tr.NodeStart("p", "n", "op", "", nil)
	if buf.Len() != 0 {
		t.Fatal("disabled tracer must not write")
	}

	SetEnabled(true)
	tr.NodeStart("p", "n", "op", "", nil)
	if buf.Len() == 0 {
		t.Fatal("enabled tracer must write")
	}
}
