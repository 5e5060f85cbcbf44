// Package diagnostics parses the compiler's structured diagnostic
// output and extracts the source locations tagged with the
// forbidden-keyword diagnostic (component D).
package diagnostics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/wardline/confine/unsafescan"
)

// forbiddenCode is the compiler diagnostic code emitted when the
// forbidden keyword is used while unsafe is currently forbidden
// (analogous to rustc's --forbid(unsafe_code) diagnostic).
const forbiddenCode = "forbidden_unsafe"

// rawDiagnostic mirrors the subset of the compiler's structured
// diagnostic JSON this reader understands. Unknown diagnostics (any
// other "code", or records that don't parse as a diagnostic at all) are
// ignored rather than rejected.
type rawDiagnostic struct {
	Message string `json:"message"`
	Code    *struct {
		Code string `json:"code"`
	} `json:"code"`
	Spans []struct {
		FileName   string `json:"file_name"`
		LineStart  int    `json:"line_start"`
		ColumnStart int   `json:"column_start"`
	} `json:"spans"`
}

// Extract reads one JSON diagnostic record per line from r (the
// compiler's captured output from a failed invocation) and returns the
// source locations belonging to forbidden-keyword diagnostics.
func Extract(r io.Reader) ([]unsafescan.Location, error) {
	var locs []unsafescan.Location

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var diag rawDiagnostic
		if err := json.Unmarshal(line, &diag); err != nil {
			// Not a diagnostic record (e.g. a plain compiler log line
			// interleaved with JSON diagnostics); ignore it.
			continue
		}

		if diag.Code == nil || diag.Code.Code != forbiddenCode {
			continue
		}

		for _, span := range diag.Spans {
			locs = append(locs, unsafescan.Location{
				Path:   span.FileName,
				Line:   span.LineStart,
				Column: span.ColumnStart,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading diagnostics: %w", err)
	}

	return locs, nil
}
