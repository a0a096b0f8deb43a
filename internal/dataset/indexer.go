package dataset

import (
	"math/rand/v2"

	"github.com/go-logr/logr"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// Batch is one chunk of triplets. Entry i of each list belongs to the same
// ground-truth row Rows[i].
type Batch struct {
	Rows      []int
	Anchors   []string
	Positives []string
	Negatives []string
}

// Len returns the number of triplets in the batch.
func (b Batch) Len() int {
	return len(b.Anchors)
}

// Indexer turns the ground-truth table of a partition into shuffled batches
// of image paths.
type Indexer struct {
	layout Layout
	rng    *rand.Rand
	log    logr.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithRand makes permutations and negative draws come from r, for
// reproducible batches.
func WithRand(r *rand.Rand) Option {
	return func(ix *Indexer) {
		ix.rng = r
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(ix *Indexer) {
		ix.log = l
	}
}

// NewIndexer creates an indexer over the given layout.
func NewIndexer(layout Layout, opts ...Option) *Indexer {
	ix := &Indexer{layout: layout, log: logr.Discard()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Layout returns the dataset layout.
func (ix *Indexer) Layout() Layout {
	return ix.layout
}

// Load reads the whole ground-truth table of partition p and version v,
// permutes its rows uniformly and cuts them into batches of batchSize (the
// last batch may be shorter). Every row appears in exactly one batch. For
// each row the negative is drawn uniformly from the candidates other than
// the positive.
//
// The permutation and negatives are redrawn on every call.
func (ix *Indexer) Load(p Partition, v Version, batchSize int) ([]Batch, error) {
	if err := ix.layout.validate(p, v); err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, errdefs.Invalid("batch size must be positive, got %d", batchSize)
	}

	records, err := readRecords(ix.layout.GroundTruth(p, v))
	if err != nil {
		return nil, err
	}

	order := ix.perm(len(records))
	batches := make([]Batch, 0, (len(order)+batchSize-1)/batchSize)
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		batch := Batch{
			Rows:      make([]int, 0, end-start),
			Anchors:   make([]string, 0, end-start),
			Positives: make([]string, 0, end-start),
			Negatives: make([]string, 0, end-start),
		}
		for _, row := range order[start:end] {
			rec := records[row]
			task, err := readTask(ix.layout.Task(p, v, rec.SampleID), rec)
			if err != nil {
				return nil, err
			}
			batch.Rows = append(batch.Rows, row)
			batch.Anchors = append(batch.Anchors, ix.layout.Image(task.Anchor))
			batch.Positives = append(batch.Positives, ix.layout.Image(task.Candidates[rec.Positive]))
			batch.Negatives = append(batch.Negatives, ix.layout.Image(task.Candidates[ix.negative(len(task.Candidates), rec.Positive)]))
		}
		batches = append(batches, batch)
	}

	ix.log.V(1).Info("indexed dataset", "partition", p, "version", int(v), "rows", len(records), "batches", len(batches))
	return batches, nil
}

func (ix *Indexer) perm(n int) []int {
	if ix.rng != nil {
		return ix.rng.Perm(n)
	}
	return rand.Perm(n) //nolint:gosec // Shuffling is not security-critical.
}

func (ix *Indexer) intN(n int) int {
	if ix.rng != nil {
		return ix.rng.IntN(n)
	}
	return rand.IntN(n) //nolint:gosec // Sampling is not security-critical.
}

// negative picks a candidate index other than positive, uniformly among the
// n-1 remaining ones.
func (ix *Indexer) negative(n, positive int) int {
	k := ix.intN(n - 1)
	if k >= positive {
		k++
	}
	return k
}
