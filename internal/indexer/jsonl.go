package indexer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dshills/coderetrieve/pkg/types"
)

// ErrMalformedLine is returned by ReadJSONL for a line that is not a JSON object
var ErrMalformedLine = errors.New("malformed chunk record")

// maxLineSize bounds one JSONL line; chunk code can be large
const maxLineSize = 16 << 20

// ReadJSONL decodes one ChunkRecord per line. Blank lines are skipped.
// A line that fails to decode aborts the read with its 1-based line number.
func ReadJSONL(r io.Reader) ([]types.ChunkRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var records []types.ChunkRecord
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec types.ChunkRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return records, nil
}
