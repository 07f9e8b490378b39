package crf

import "math"

// ForwardBackwardResult holds the results of the forward-backward algorithm.
type ForwardBackwardResult struct {
	LogZ      float64     // log partition function
	Marginals [][]float64 // [T][L] marginal probabilities P(y_t=j|x)
	Alpha     [][]float64 // [T][L] log-space forward variables
	Beta      [][]float64 // [T][L] log-space backward variables
}

// ForwardBackward runs the forward-backward algorithm in log space with
// max-subtracted log-sum-exp reductions. Boundary scores enter the forward
// pass at position 0 and the backward pass at position T-1.
// stateScores: [T][L] per-position emission scores.
func ForwardBackward(stateScores [][]float64, tr *Transitions) ForwardBackwardResult {
	T := len(stateScores)
	if T == 0 {
		return ForwardBackwardResult{}
	}
	L := tr.NumLabels
	work := make([]float64, L)

	// Forward pass.
	alpha := make([][]float64, T)
	alpha[0] = make([]float64, L)
	for y := 0; y < L; y++ {
		alpha[0][y] = tr.Start[y] + stateScores[0][y]
	}
	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, L)
		for y := 0; y < L; y++ {
			for yp := 0; yp < L; yp++ {
				work[yp] = alpha[t-1][yp] + tr.Weights[yp][y]
			}
			alpha[t][y] = logSumExp(work) + stateScores[t][y]
		}
	}

	for y := 0; y < L; y++ {
		work[y] = alpha[T-1][y] + tr.End[y]
	}
	logZ := logSumExp(work)

	// Backward pass.
	beta := make([][]float64, T)
	beta[T-1] = make([]float64, L)
	copy(beta[T-1], tr.End)
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, L)
		for y := 0; y < L; y++ {
			for yn := 0; yn < L; yn++ {
				work[yn] = tr.Weights[y][yn] + stateScores[t+1][yn] + beta[t+1][yn]
			}
			beta[t][y] = logSumExp(work)
		}
	}

	// Marginals: P(y_t=j|x) = exp(alpha[t][j] + beta[t][j] - logZ)
	marginals := make([][]float64, T)
	for t := 0; t < T; t++ {
		marginals[t] = make([]float64, L)
		for y := 0; y < L; y++ {
			marginals[t][y] = math.Exp(alpha[t][y] + beta[t][y] - logZ)
		}
	}

	return ForwardBackwardResult{
		LogZ:      logZ,
		Marginals: marginals,
		Alpha:     alpha,
		Beta:      beta,
	}
}

// TransitionMarginals computes P(y_t=i, y_{t+1}=j | x) for all t, i, j.
// Returns a [T-1][L][L] tensor.
func TransitionMarginals(fb ForwardBackwardResult, stateScores [][]float64, tr *Transitions) [][][]float64 {
	T := len(stateScores)
	if T <= 1 {
		return nil
	}
	L := tr.NumLabels

	result := make([][][]float64, T-1)
	for t := 0; t < T-1; t++ {
		result[t] = make([][]float64, L)
		for i := 0; i < L; i++ {
			result[t][i] = make([]float64, L)
			for j := 0; j < L; j++ {
				result[t][i][j] = math.Exp(fb.Alpha[t][i] + tr.Weights[i][j] +
					stateScores[t+1][j] + fb.Beta[t+1][j] - fb.LogZ)
			}
		}
	}
	return result
}
