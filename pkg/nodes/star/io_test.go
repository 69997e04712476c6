package star

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandboxws/rankdsl/engine/pkg/keys"
)

const csvModule = `
meta = {
    "name": "csvmod",
    "version": "2.0.0",
    "writes": [Keys.SCORE_ADJUSTED],
    "budget": {"max_io_read_bytes": 4096, "max_io_read_rows": 100},
    "capabilities": {"io": {"csv_read": True}},
}

def run_batch(rows, ctx, params):
    data = ctx.io.readCsv(params["resource"])
    out = ctx.batch.writeF32(Keys.SCORE_ADJUSTED)
    for i in range(ctx.batch.rowCount()):
        out[i] = data["rowCount"]
`

func writeAssets(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	csv := "name, score\nalpha, 10\nbeta, 20\ngamma, 30\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte(csv), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.csv"), []byte("a\n1\n"), 0o644))
	return dir
}

func csvParams(t *testing.T, module, resource string) []byte {
	t.Helper()
	return []byte(`{"module": ` + quote(module) + `, "resource": ` + quote(resource) + `}`)
}

func quote(s string) string {
	out := `"`
	for _, c := range s {
		if c == '"' || c == '\\' {
			out += `\`
		}
		out += string(c)
	}
	return out + `"`
}

func allowPolicy(dir string) *Policy {
	return NewPolicy(dir, PolicyEntry{Name: "csvmod", AllowIoCsvRead: true})
}

// With the policy allowing the module, readCsv returns headers and rows.
func TestGuestCsvRead(t *testing.T) {
	dir := writeAssets(t)
	module := writeModule(t, "csvmod.star", csvModule)
	in := guestInput(t, 2)

	out, err := (Runner{}).Run(guestCtx(allowPolicy(dir)), in, csvParams(t, module, "data.csv"))
	require.NoError(t, err)

	adjusted, ok := out.F32(keys.ScoreAdjusted)
	require.True(t, ok)
	require.InDelta(t, 3.0, adjusted.At(0), 1e-6, "rowCount should be 3")
}

// The same module absent from the policy gets no ctx.io at all.
func TestGuestCsvDeniedByPolicy(t *testing.T) {
	dir := writeAssets(t)
	module := writeModule(t, "csvmod.star", csvModule)
	in := guestInput(t, 2)

	_, err := (Runner{}).Run(guestCtx(NewPolicy(dir)), in, csvParams(t, module, "data.csv"))
	require.ErrorIs(t, err, ErrIoNotEnabled)

	// No policy object at all behaves the same.
	_, err = (Runner{}).Run(guestCtx(nil), in, csvParams(t, module, "data.csv"))
	require.ErrorIs(t, err, ErrIoNotEnabled)
}

func TestGuestCsvPathTraversal(t *testing.T) {
	dir := writeAssets(t)
	module := writeModule(t, "csvmod.star", csvModule)
	in := guestInput(t, 1)

	for _, resource := range []string{"../escape.csv", "/etc/passwd", `sub\\nested.csv`} {
		_, err := (Runner{}).Run(guestCtx(allowPolicy(dir)), in, csvParams(t, module, resource))
		require.ErrorIs(t, err, ErrPathTraversal, resource)
	}

	// Nested paths without traversal are fine.
	_, err := (Runner{}).Run(guestCtx(allowPolicy(dir)), in, csvParams(t, module, "sub/nested.csv"))
	require.NoError(t, err)
}

// A zero IO budget disables IO even when the capability and policy agree.
func TestGuestCsvZeroBudgetDisablesIo(t *testing.T) {
	dir := writeAssets(t)
	module := writeModule(t, "nobudget.star", `
meta = {
    "name": "csvmod",
    "version": "2.0.0",
    "writes": [],
    "capabilities": {"io": {"csv_read": True}},
}

def run_batch(rows, ctx, params):
    ctx.io.readCsv("data.csv")
`)
	in := guestInput(t, 1)
	_, err := (Runner{}).Run(guestCtx(allowPolicy(dir)), in, moduleParamsJSON(module))
	require.ErrorIs(t, err, ErrIoBudgetExceeded)
}

func TestGuestCsvRowBudgetExceeded(t *testing.T) {
	dir := writeAssets(t)
	module := writeModule(t, "tiny.star", `
meta = {
    "name": "csvmod",
    "version": "2.0.0",
    "writes": [],
    "budget": {"max_io_read_bytes": 4096, "max_io_read_rows": 2},
    "capabilities": {"io": {"csv_read": True}},
}

def run_batch(rows, ctx, params):
    ctx.io.readCsv("data.csv")
`)
	in := guestInput(t, 1)
	_, err := (Runner{}).Run(guestCtx(allowPolicy(dir)), in, moduleParamsJSON(module))
	require.ErrorIs(t, err, ErrIoBudgetExceeded)
}

func TestCsvParsing(t *testing.T) {
	dir := writeAssets(t)
	io := &ioContext{assetsDir: dir, budget: Budget{MaxIoReadBytes: 4096, MaxIoReadRows: 100}}

	result, err := io.readCsv("data.csv")
	require.NoError(t, err)
	require.Equal(t, int64(3), result.rows)
	require.Equal(t, []string{"name", "score"}, result.headers)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, result.columns["name"])
	require.Equal(t, []string{"10", "20", "30"}, result.columns["score"])

	// Accrual is cumulative across calls.
	require.Equal(t, int64(3), io.rowsRead)
	before := io.bytesRead
	require.Greater(t, before, int64(0))

	_, err = io.readCsv("data.csv")
	require.NoError(t, err)
	require.Equal(t, int64(6), io.rowsRead)
	require.Equal(t, before*2, io.bytesRead)
}

func TestCsvMissingFile(t *testing.T) {
	io := &ioContext{assetsDir: t.TempDir(), budget: Budget{MaxIoReadBytes: 10, MaxIoReadRows: 10}}
	_, err := io.readCsv("absent.csv")
	require.Error(t, err)
}

func TestValidateCsvPath(t *testing.T) {
	require.NoError(t, validateCsvPath("a.csv"))
	require.NoError(t, validateCsvPath("dir/a.csv"))
	require.ErrorIs(t, validateCsvPath(""), ErrPathTraversal)
	require.ErrorIs(t, validateCsvPath("/abs.csv"), ErrPathTraversal)
	require.ErrorIs(t, validateCsvPath("../up.csv"), ErrPathTraversal)
	require.ErrorIs(t, validateCsvPath("dir/../up.csv"), ErrPathTraversal)
	require.ErrorIs(t, validateCsvPath(`dir\file.csv`), ErrPathTraversal)
}
