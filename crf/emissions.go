package crf

import "fmt"

// Emissions is a dense per-label score tensor of shape (Batch, MaxLen,
// NumLabels), flattened row-major. Scores at positions past a sequence's
// true length may hold anything; every pass masks them out.
type Emissions struct {
	Batch     int
	MaxLen    int
	NumLabels int
	Scores    []float64 // len Batch*MaxLen*NumLabels
}

// NewEmissions allocates a zeroed emission tensor.
func NewEmissions(batch, maxLen, numLabels int) *Emissions {
	return &Emissions{
		Batch:     batch,
		MaxLen:    maxLen,
		NumLabels: numLabels,
		Scores:    make([]float64, batch*maxLen*numLabels),
	}
}

// Row returns the per-label scores at position t of example b as a slice
// sharing the underlying tensor.
func (e *Emissions) Row(b, t int) []float64 {
	off := (b*e.MaxLen + t) * e.NumLabels
	return e.Scores[off : off+e.NumLabels]
}

// Sequence returns all MaxLen rows of example b, sharing the underlying tensor.
func (e *Emissions) Sequence(b int) [][]float64 {
	rows := make([][]float64, e.MaxLen)
	for t := 0; t < e.MaxLen; t++ {
		rows[t] = e.Row(b, t)
	}
	return rows
}

// checkBatch validates the shapes shared by every batched pass: matching
// label counts, one length per example, every length within [1, MaxLen].
func checkBatch(em *Emissions, tr *Transitions, lengths []int) error {
	if em.NumLabels != tr.NumLabels {
		return fmt.Errorf("emissions have %d labels, transitions %d", em.NumLabels, tr.NumLabels)
	}
	if len(lengths) != em.Batch {
		return fmt.Errorf("got %d lengths for batch of %d", len(lengths), em.Batch)
	}
	for b, n := range lengths {
		if n < 1 || n > em.MaxLen {
			return fmt.Errorf("length %d of example %d outside [1, %d]", n, b, em.MaxLen)
		}
	}
	return nil
}

// checkLabels validates gold label rows against the batch shape: one row per
// example, each covering its true length with IDs inside the label set.
func checkLabels(em *Emissions, labels [][]int, lengths []int) error {
	if len(labels) != em.Batch {
		return fmt.Errorf("got %d label rows for batch of %d", len(labels), em.Batch)
	}
	for b, row := range labels {
		if len(row) < lengths[b] {
			return fmt.Errorf("label row %d has %d positions, need %d", b, len(row), lengths[b])
		}
		for t := 0; t < lengths[b]; t++ {
			if row[t] < 0 || row[t] >= em.NumLabels {
				return fmt.Errorf("label %d at (%d, %d) outside [0, %d)", row[t], b, t, em.NumLabels)
			}
		}
	}
	return nil
}
