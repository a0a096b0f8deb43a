package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// ErrMalformed marks ground-truth rows or task documents that parse but do
// not describe a usable triplet.
var ErrMalformed = errors.New("malformed dataset entry")

// Record is one ground-truth row: the task id and the index of the correct
// candidate.
type Record struct {
	SampleID string
	Positive int
}

// Task is a decoded task document: the anchor image name and the
// candidate image names, exactly one of which matches the anchor.
type Task struct {
	Anchor     string
	Candidates []string
}

// UnmarshalJSON decodes the two-element array form [anchor, [candidates...]].
func (t *Task) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("%w: task has %d elements, want 2", ErrMalformed, len(parts))
	}
	if err := json.Unmarshal(parts[0], &t.Anchor); err != nil {
		return fmt.Errorf("anchor: %w", err)
	}
	if err := json.Unmarshal(parts[1], &t.Candidates); err != nil {
		return fmt.Errorf("candidates: %w", err)
	}
	return nil
}

// readRecords reads the whole ground-truth table.
func readRecords(path string) ([]Record, error) {
	f, err := os.Open(path) //nolint:gosec // Dataset paths come from configuration.
	if err != nil {
		return nil, errdefs.NewIOError("open ground truth", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errdefs.NewIOError("read ground truth", path, err)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, errdefs.NewIOError("read ground truth", path,
				fmt.Errorf("%w: row %d has %d fields, want 2", ErrMalformed, i+1, len(row)))
		}
		id := strings.TrimSpace(row[0])
		pos, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || id == "" || pos < 0 {
			return nil, errdefs.NewIOError("read ground truth", path,
				fmt.Errorf("%w: row %d: %q", ErrMalformed, i+1, strings.Join(row, ",")))
		}
		records = append(records, Record{SampleID: id, Positive: pos})
	}
	return records, nil
}

// readTask decodes one task document and checks it against its record.
func readTask(path string, rec Record) (Task, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Dataset paths come from configuration.
	if err != nil {
		return Task{}, errdefs.NewIOError("read task", path, err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, errdefs.NewIOError("decode task", path, err)
	}
	switch {
	case task.Anchor == "":
		return Task{}, errdefs.NewIOError("decode task", path, fmt.Errorf("%w: empty anchor", ErrMalformed))
	case len(task.Candidates) < 2:
		return Task{}, errdefs.NewIOError("decode task", path,
			fmt.Errorf("%w: %d candidates, need at least 2", ErrMalformed, len(task.Candidates)))
	case rec.Positive >= len(task.Candidates):
		return Task{}, errdefs.NewIOError("decode task", path,
			fmt.Errorf("%w: positive index %d out of range for %d candidates", ErrMalformed, rec.Positive, len(task.Candidates)))
	}
	return task, nil
}
