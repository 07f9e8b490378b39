package crf

import "math"

// logSumExp reduces xs[:n] in log space with the max subtracted first, so
// large magnitudes cannot overflow. An all minus-infinity input stays minus
// infinity instead of turning into NaN.
func logSumExp(xs []float64) float64 {
	maxVal := math.Inf(-1)
	for _, x := range xs {
		if x > maxVal {
			maxVal = x
		}
	}
	if math.IsInf(maxVal, -1) {
		return maxVal
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - maxVal)
	}
	return maxVal + math.Log(sum)
}

// forwardSeq runs the log-space forward recursion over the first length rows
// of scores and returns the log partition. work must hold at least L values.
func forwardSeq(scores [][]float64, tr *Transitions, length int, work []float64) float64 {
	L := tr.NumLabels
	alpha := make([]float64, L)
	next := make([]float64, L)

	for y := 0; y < L; y++ {
		alpha[y] = tr.Start[y] + scores[0][y]
	}
	for t := 1; t < length; t++ {
		for y := 0; y < L; y++ {
			for yp := 0; yp < L; yp++ {
				work[yp] = alpha[yp] + tr.Weights[yp][y]
			}
			next[y] = logSumExp(work[:L]) + scores[t][y]
		}
		alpha, next = next, alpha
	}
	for y := 0; y < L; y++ {
		work[y] = alpha[y] + tr.End[y]
	}
	return logSumExp(work[:L])
}

// pathScore scores a single label path over the first length rows of scores,
// including both boundary transitions.
func pathScore(scores [][]float64, tr *Transitions, path []int, length int) float64 {
	score := tr.Start[path[0]] + scores[0][path[0]]
	for t := 1; t < length; t++ {
		score += tr.Weights[path[t-1]][path[t]] + scores[t][path[t]]
	}
	return score + tr.End[path[length-1]]
}

// Forward computes the log partition function for every example in the
// batch, each restricted to its true length.
func Forward(em *Emissions, tr *Transitions, lengths []int) ([]float64, error) {
	if err := checkBatch(em, tr, lengths); err != nil {
		return nil, err
	}
	logZ := make([]float64, em.Batch)
	work := make([]float64, em.NumLabels)
	for b := 0; b < em.Batch; b++ {
		logZ[b] = forwardSeq(em.Sequence(b), tr, lengths[b], work)
	}
	return logZ, nil
}

// GoldScore computes the unnormalized score of each gold label path:
// the start boundary, the per-position emissions, the transitions between
// consecutive labels and the end boundary, all within the true length.
func GoldScore(em *Emissions, tr *Transitions, labels [][]int, lengths []int) ([]float64, error) {
	if err := checkBatch(em, tr, lengths); err != nil {
		return nil, err
	}
	if err := checkLabels(em, labels, lengths); err != nil {
		return nil, err
	}
	scores := make([]float64, em.Batch)
	for b := 0; b < em.Batch; b++ {
		scores[b] = pathScore(em.Sequence(b), tr, labels[b], lengths[b])
	}
	return scores, nil
}

// NLL computes the per-example negative log-likelihood, log partition minus
// gold path score. Values are non-negative up to floating-point round-off.
func NLL(em *Emissions, tr *Transitions, labels [][]int, lengths []int) ([]float64, error) {
	if err := checkBatch(em, tr, lengths); err != nil {
		return nil, err
	}
	if err := checkLabels(em, labels, lengths); err != nil {
		return nil, err
	}
	loss := make([]float64, em.Batch)
	work := make([]float64, em.NumLabels)
	for b := 0; b < em.Batch; b++ {
		seq := em.Sequence(b)
		logZ := forwardSeq(seq, tr, lengths[b], work)
		loss[b] = logZ - pathScore(seq, tr, labels[b], lengths[b])
	}
	return loss, nil
}
