// Package dataset indexes the SUN360 half-panorama task dataset into
// batches of (anchor, positive, negative) image paths.
//
// On-disk layout under the dataset root:
//
//	gt_<part>[_v1|_v2].csv          rows of "<sample_id>,<positive_index>"
//	task_<part>[_v1|_v2]/<id>.json  [anchor_name, [candidate_name, ...]]
//	IMGs/<name>                     image files
package dataset

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// DefaultImagesDir is the image directory name relative to the dataset root.
const DefaultImagesDir = "IMGs"

// Partition selects the train or test split.
type Partition int

// Partitions.
const (
	Train Partition = iota
	Test
)

// ParsePartition parses "train" or "test".
func ParsePartition(s string) (Partition, error) {
	switch strings.ToLower(s) {
	case "train":
		return Train, nil
	case "test":
		return Test, nil
	}
	return 0, errdefs.Invalid("unavailable dataset part %q", s)
}

// String returns the partition name used in file names.
func (p Partition) String() string {
	switch p {
	case Train:
		return "train"
	case Test:
		return "test"
	}
	return "Partition(" + strconv.Itoa(int(p)) + ")"
}

// Version selects one of the dataset variants.
type Version int

// Dataset versions. V0 has no file suffix.
const (
	V0 Version = iota
	V1
	V2
)

// ParseVersion accepts 0, 1 or 2, with an optional "v" prefix.
func ParseVersion(s string) (Version, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(s), "v"))
	if err != nil {
		return 0, errdefs.Invalid("unavailable dataset version %q", s)
	}
	v := Version(n)
	if !v.Valid() {
		return 0, errdefs.Invalid("unavailable dataset version %q", s)
	}
	return v, nil
}

// Valid reports whether v is a known version.
func (v Version) Valid() bool {
	return v >= V0 && v <= V2
}

func (v Version) suffix() string {
	if v == V0 {
		return ""
	}
	return "_v" + strconv.Itoa(int(v))
}

// Layout resolves dataset paths under Root.
type Layout struct {
	Root      string
	ImagesDir string // relative to Root; DefaultImagesDir when empty
}

// GroundTruth returns the CSV table path, e.g. root/gt_train_v1.csv.
func (l Layout) GroundTruth(p Partition, v Version) string {
	return filepath.Join(l.Root, "gt_"+p.String()+v.suffix()+".csv")
}

// TaskDir returns the task document directory, e.g. root/task_test.
func (l Layout) TaskDir(p Partition, v Version) string {
	return filepath.Join(l.Root, "task_"+p.String()+v.suffix())
}

// Task returns the path of one task document.
func (l Layout) Task(p Partition, v Version, sampleID string) string {
	return filepath.Join(l.TaskDir(p, v), sampleID+".json")
}

// Image returns the path of an image by name.
func (l Layout) Image(name string) string {
	dir := l.ImagesDir
	if dir == "" {
		dir = DefaultImagesDir
	}
	return filepath.Join(l.Root, dir, name)
}

func (l Layout) validate(p Partition, v Version) error {
	if p != Train && p != Test {
		return errdefs.Invalid("unavailable dataset part %s", p)
	}
	if !v.Valid() {
		return errdefs.Invalid("unavailable dataset version %d", int(v))
	}
	return nil
}
