package crf

import "math"

// viterbiSeq finds the best label path over the first length rows of scores
// and writes it into path[:length], returning the path score. Candidates are
// scanned in ascending label order with a strict comparison, so ties always
// resolve to the lowest label ID.
func viterbiSeq(scores [][]float64, tr *Transitions, length int, path []int) float64 {
	L := tr.NumLabels

	// delta[t][y] = best score ending at position t with label y
	delta := make([][]float64, length)
	// psi[t][y] = best previous label for backtracking
	psi := make([][]int, length)

	delta[0] = make([]float64, L)
	psi[0] = make([]int, L)
	for y := range L {
		delta[0][y] = tr.Start[y] + scores[0][y]
	}

	for t := 1; t < length; t++ {
		delta[t] = make([]float64, L)
		psi[t] = make([]int, L)
		for y := range L {
			bestScore := math.Inf(-1)
			bestPrev := 0
			for yp := range L {
				score := delta[t-1][yp] + tr.Weights[yp][y]
				if score > bestScore {
					bestScore = score
					bestPrev = yp
				}
			}
			delta[t][y] = bestScore + scores[t][y]
			psi[t][y] = bestPrev
		}
	}

	// Best final label, end boundary included.
	bestScore := math.Inf(-1)
	bestLabel := 0
	for y := range L {
		score := delta[length-1][y] + tr.End[y]
		if score > bestScore {
			bestScore = score
			bestLabel = y
		}
	}

	path[length-1] = bestLabel
	for t := length - 2; t >= 0; t-- {
		path[t] = psi[t+1][path[t+1]]
	}
	return bestScore
}

// Decode runs Viterbi over every example in the batch. Each returned row is
// padded to MaxLen with label 0 past the true length; the returned score
// equals the GoldScore of the returned path. Examples are decoded
// independently, so any batching of the same sequences yields the same paths.
func Decode(em *Emissions, tr *Transitions, lengths []int) ([][]int, []float64, error) {
	if err := checkBatch(em, tr, lengths); err != nil {
		return nil, nil, err
	}
	paths := make([][]int, em.Batch)
	scores := make([]float64, em.Batch)
	for b := range em.Batch {
		paths[b] = make([]int, em.MaxLen)
		scores[b] = viterbiSeq(em.Sequence(b), tr, lengths[b], paths[b])
	}
	return paths, scores, nil
}

// Predict returns the best label sequence as strings.
func (m *Model) Predict(features []map[string]float64) []string {
	if len(features) == 0 {
		return nil
	}
	stateScores := m.ComputeStateScores(features)
	path := make([]int, len(features))
	viterbiSeq(stateScores, m.Transitions(), len(features), path)

	labels := make([]string, len(path))
	for i, id := range path {
		if id < len(m.Labels.ToStr) {
			labels[i] = m.Labels.ToStr[id]
		}
	}
	return labels
}

// PredictMarginals returns per-position marginal probabilities.
func (m *Model) PredictMarginals(features []map[string]float64) []map[string]float64 {
	stateScores := m.ComputeStateScores(features)
	fb := ForwardBackward(stateScores, m.Transitions())

	result := make([]map[string]float64, len(features))
	for t := range features {
		result[t] = make(map[string]float64)
		for y := range m.NumLabels {
			if y < len(m.Labels.ToStr) {
				result[t][m.Labels.ToStr[y]] = fb.Marginals[t][y]
			}
		}
	}
	return result
}
