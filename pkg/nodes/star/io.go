package star

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ioContext tracks CSV read accrual against the module's IO budget.
type ioContext struct {
	assetsDir string
	budget    Budget

	bytesRead int64
	rowsRead  int64
}

// csvResult is the host-side shape handed back to the guest.
type csvResult struct {
	headers []string
	columns map[string][]string
	rows    int64
}

// validateCsvPath rejects absolute paths, any ".." segment, and backslashes.
func validateCsvPath(resource string) error {
	if resource == "" {
		return fmt.Errorf("%w: empty resource", ErrPathTraversal)
	}
	if resource[0] == '/' || resource[0] == '\\' {
		return fmt.Errorf("%w: absolute path %q", ErrPathTraversal, resource)
	}
	if strings.Contains(resource, "\\") {
		return fmt.Errorf("%w: backslash in %q", ErrPathTraversal, resource)
	}
	for _, seg := range strings.Split(resource, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q escapes the assets directory", ErrPathTraversal, resource)
		}
	}
	return nil
}

// readCsv parses a CSV resource under the assets directory: a header row,
// comma-separated cells, whitespace trimming, no quoted-field handling.
// Every byte and row accrues against the IO budget; a zero budget disables
// IO outright.
func (io *ioContext) readCsv(resource string) (*csvResult, error) {
	if err := validateCsvPath(resource); err != nil {
		return nil, err
	}
	if io.budget.MaxIoReadBytes == 0 || io.budget.MaxIoReadRows == 0 {
		return nil, fmt.Errorf("%w: io budget not configured (max_io_read_bytes/rows = 0)", ErrIoBudgetExceeded)
	}

	path := filepath.Join(io.assetsDir, resource)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", resource, err)
	}
	defer f.Close()

	result := &csvResult{columns: make(map[string][]string)}
	scanner := bufio.NewScanner(f)

	var bytesRead int64
	if scanner.Scan() {
		line := scanner.Text()
		bytesRead += int64(len(line)) + 1
		for _, cell := range strings.Split(line, ",") {
			name := strings.TrimSpace(cell)
			result.headers = append(result.headers, name)
			result.columns[name] = nil
		}
	}

	var rows int64
	for scanner.Scan() {
		line := scanner.Text()
		bytesRead += int64(len(line)) + 1
		if io.bytesRead+bytesRead > io.budget.MaxIoReadBytes {
			return nil, fmt.Errorf("%w: max_io_read_bytes=%d", ErrIoBudgetExceeded, io.budget.MaxIoReadBytes)
		}
		if io.rowsRead+rows+1 > io.budget.MaxIoReadRows {
			return nil, fmt.Errorf("%w: max_io_read_rows=%d", ErrIoBudgetExceeded, io.budget.MaxIoReadRows)
		}

		cells := strings.Split(line, ",")
		for i, name := range result.headers {
			cell := ""
			if i < len(cells) {
				cell = strings.TrimSpace(cells[i])
			}
			result.columns[name] = append(result.columns[name], cell)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read csv %s: %w", resource, err)
	}

	io.bytesRead += bytesRead
	io.rowsRead += rows
	result.rows = rows
	return result, nil
}
