package crf

import (
	"fmt"
	"log/slog"
	"math"
)

// TrainerConfig holds CRF training hyperparameters.
type TrainerConfig struct {
	C1            float64 // L1 regularization
	C2            float64 // L2 regularization
	MaxIterations int
	Labels        []string // fixed label vocabulary; discovered from the data when empty
	Epsilon       float64  // convergence threshold
}

// DefaultTrainerConfig returns the default training config.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		C1:            0.1,
		C2:            0.01,
		MaxIterations: 100,
		Epsilon:       1e-5,
	}
}

// Train fits a model to the given sequences using OWL-QN. When the config
// carries a preset label vocabulary its order is kept and any sequence label
// outside it is an error.
func Train(sequences []TrainingSequence, config TrainerConfig) (*Model, error) {
	if len(sequences) == 0 {
		return nil, fmt.Errorf("train: no sequences")
	}

	model := NewModel()
	if len(config.Labels) > 0 {
		for _, label := range config.Labels {
			model.Labels.Add(label)
		}
	} else {
		model.Labels = BuildLabelAlphabet(sequences)
	}
	model.Attributes = BuildAttributeAlphabet(sequences)
	model.NumLabels = model.Labels.Size()

	numWeights := model.NumWeights()
	model.Weights = make([]float64, numWeights)

	// Convert training data to internal representation
	type internalSeq struct {
		features [][]featureEntry // [T][...] (attrID, value)
		labels   []int            // [T] label IDs
	}

	internals := make([]internalSeq, len(sequences))
	for i, seq := range sequences {
		T := len(seq.Features)
		if T == 0 {
			return nil, fmt.Errorf("train: sequence %d is empty", i)
		}
		if T != len(seq.Labels) {
			return nil, fmt.Errorf("train: sequence %d has %d positions but %d labels", i, T, len(seq.Labels))
		}
		is := internalSeq{
			features: make([][]featureEntry, T),
			labels:   make([]int, T),
		}
		for t := range T {
			for attr, val := range seq.Features[t] {
				attrID := model.Attributes.Get(attr)
				if attrID >= 0 {
					is.features[t] = append(is.features[t], featureEntry{attrID, val})
				}
			}
			labelID := model.Labels.Get(seq.Labels[t])
			if labelID < 0 {
				return nil, fmt.Errorf("train: sequence %d carries label %q outside the vocabulary", i, seq.Labels[t])
			}
			is.labels[t] = labelID
		}
		internals[i] = is
	}

	L := model.NumLabels
	transOffset := model.TransOffset()
	startOffset := model.StartOffset()
	endOffset := model.EndOffset()

	// transitionsAt aliases the transition and boundary blocks of a weight
	// vector, so scoring always reads the vector under evaluation.
	transitionsAt := func(w []float64) *Transitions {
		rows := make([][]float64, L)
		for i := range L {
			rows[i] = w[transOffset+i*L : transOffset+(i+1)*L]
		}
		return &Transitions{
			NumLabels: L,
			Weights:   rows,
			Start:     w[startOffset : startOffset+L],
			End:       w[endOffset : endOffset+L],
		}
	}

	stateScoresAt := func(w []float64, features [][]featureEntry) [][]float64 {
		scores := make([][]float64, len(features))
		for t := range features {
			scores[t] = make([]float64, L)
			for _, fe := range features[t] {
				for y := range L {
					scores[t][y] += w[fe.attrID*L+y] * fe.value
				}
			}
		}
		return scores
	}

	// evalAt returns the regularized objective at w. With a non-nil grad it
	// also fills the L2-regularized gradient; the L1 term enters the
	// objective only, its subgradient is OWL-QN's job.
	evalAt := func(w []float64, grad []float64) float64 {
		if grad != nil {
			for i := range grad {
				grad[i] = 0
			}
		}
		obj := 0.0
		tr := transitionsAt(w)
		for _, is := range internals {
			T := len(is.features)
			stateScores := stateScoresAt(w, is.features)
			fb := ForwardBackward(stateScores, tr)
			obj += fb.LogZ - pathScore(stateScores, tr, is.labels, T)

			if grad == nil {
				continue
			}
			// Gradient: E_model[f_k|x] - E_empirical[f_k]
			for t := range T {
				goldY := is.labels[t]
				for _, fe := range is.features[t] {
					grad[fe.attrID*L+goldY] -= fe.value
					for y := range L {
						grad[fe.attrID*L+y] += fb.Marginals[t][y] * fe.value
					}
				}
			}
			if T > 1 {
				transMarg := TransitionMarginals(fb, stateScores, tr)
				for t := range T - 1 {
					grad[transOffset+is.labels[t]*L+is.labels[t+1]] -= 1.0
					for i := range L {
						for j := range L {
							grad[transOffset+i*L+j] += transMarg[t][i][j]
						}
					}
				}
			}
			grad[startOffset+is.labels[0]] -= 1.0
			grad[endOffset+is.labels[T-1]] -= 1.0
			for y := range L {
				grad[startOffset+y] += fb.Marginals[0][y]
				grad[endOffset+y] += fb.Marginals[T-1][y]
			}
		}
		if config.C2 > 0 {
			l2 := 0.0
			for i := range numWeights {
				l2 += w[i] * w[i]
				if grad != nil {
					grad[i] += config.C2 * w[i]
				}
			}
			obj += 0.5 * config.C2 * l2
		}
		if config.C1 > 0 {
			for i := range numWeights {
				obj += config.C1 * math.Abs(w[i])
			}
		}
		return obj
	}

	// Pseudo-gradient for the L1 term.
	pseudoGradient := func(w, grad []float64) []float64 {
		pg := make([]float64, numWeights)
		for i := range numWeights {
			switch {
			case w[i] > 0:
				pg[i] = grad[i] + config.C1
			case w[i] < 0:
				pg[i] = grad[i] - config.C1
			default:
				switch {
				case grad[i]+config.C1 < 0:
					pg[i] = grad[i] + config.C1
				case grad[i]-config.C1 > 0:
					pg[i] = grad[i] - config.C1
				default:
					pg[i] = 0
				}
			}
		}
		return pg
	}

	// OWL-QN optimization
	lbfgs := newLBFGS(numWeights, 10)
	w := model.Weights
	grad := make([]float64, numWeights)
	obj := evalAt(w, grad)

	for iter := range config.MaxIterations {
		slog.Debug("CRF training iteration", "iteration", iter+1, "objective", obj)

		pg := pseudoGradient(w, grad)

		// Get search direction from L-BFGS
		dir := lbfgs.computeDirection(pg)

		// Constrain direction to same orthant as pseudo-gradient
		for i := range numWeights {
			if dir[i]*pg[i] > 0 {
				dir[i] = 0
			}
		}

		// Line search with orthant projection
		step := owlqnLineSearch(w, dir, obj, pg, func(wNew []float64) float64 {
			return evalAt(wNew, nil)
		}, numWeights, config.C1)

		if step == 0 {
			slog.Warn("CRF line search failed, stopping")
			break
		}

		// Update weights
		prevW := make([]float64, numWeights)
		copy(prevW, w)
		for i := range numWeights {
			w[i] += step * dir[i]
		}

		// Project onto orthant (OWL-QN constraint)
		if config.C1 > 0 {
			for i := range numWeights {
				if w[i]*prevW[i] < 0 {
					w[i] = 0
				}
			}
		}

		// Update L-BFGS memory
		s := make([]float64, numWeights)
		for i := range numWeights {
			s[i] = w[i] - prevW[i]
		}

		obj = evalAt(w, grad)
		newPG := pseudoGradient(w, grad)

		y := make([]float64, numWeights)
		for i := range numWeights {
			y[i] = newPG[i] - pg[i]
		}
		lbfgs.update(s, y)

		// Check convergence
		maxGrad := 0.0
		for _, g := range newPG {
			if math.Abs(g) > maxGrad {
				maxGrad = math.Abs(g)
			}
		}
		if maxGrad < config.Epsilon {
			slog.Debug("CRF converged", "iteration", iter+1, "max_gradient", maxGrad)
			break
		}
	}

	model.Weights = w
	return model, nil
}

type featureEntry struct {
	attrID int
	value  float64
}

// lbfgs implements the L-BFGS two-loop recursion.
type lbfgs struct {
	n    int // number of variables
	m    int // memory size
	s    [][]float64
	y    [][]float64
	rho  []float64
	k    int
	size int
}

func newLBFGS(n, m int) *lbfgs {
	return &lbfgs{
		n:   n,
		m:   m,
		s:   make([][]float64, m),
		y:   make([][]float64, m),
		rho: make([]float64, m),
	}
}

func (l *lbfgs) update(s, y []float64) {
	sy := dot(s, y)
	if sy <= 0 {
		return
	}
	idx := l.k % l.m
	l.s[idx] = make([]float64, l.n)
	l.y[idx] = make([]float64, l.n)
	copy(l.s[idx], s)
	copy(l.y[idx], y)
	l.rho[idx] = 1.0 / sy
	l.k++
	if l.size < l.m {
		l.size++
	}
}

func (l *lbfgs) computeDirection(pg []float64) []float64 {
	q := make([]float64, l.n)
	copy(q, pg)

	if l.size == 0 {
		// Simple gradient descent direction
		for i := range q {
			q[i] = -q[i]
		}
		return q
	}

	alpha := make([]float64, l.size)

	// First loop
	for i := l.size - 1; i >= 0; i-- {
		idx := (l.k - 1 - (l.size - 1 - i)) % l.m
		if idx < 0 {
			idx += l.m
		}
		alpha[i] = l.rho[idx] * dot(l.s[idx], q)
		for j := range l.n {
			q[j] -= alpha[i] * l.y[idx][j]
		}
	}

	// Scale by H_0 = (s_k^T y_k) / (y_k^T y_k)
	latestIdx := (l.k - 1) % l.m
	if latestIdx < 0 {
		latestIdx += l.m
	}
	yy := dot(l.y[latestIdx], l.y[latestIdx])
	if yy > 0 {
		sy := dot(l.s[latestIdx], l.y[latestIdx])
		gamma := sy / yy
		for i := range q {
			q[i] *= gamma
		}
	}

	// Second loop
	for i := range l.size {
		idx := (l.k - l.size + i) % l.m
		if idx < 0 {
			idx += l.m
		}
		beta := l.rho[idx] * dot(l.y[idx], q)
		for j := range l.n {
			q[j] += (alpha[i] - beta) * l.s[idx][j]
		}
	}

	// Negate for descent direction
	for i := range q {
		q[i] = -q[i]
	}
	return q
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// owlqnLineSearch performs a backtracking line search for OWL-QN.
func owlqnLineSearch(w, dir []float64, fVal float64, pg []float64, objFunc func([]float64) float64, n int, c1 float64) float64 {
	dirDeriv := dot(dir, pg)
	if dirDeriv >= 0 {
		return 0
	}

	step := 1.0
	c := 1e-4 // Armijo constant
	wNew := make([]float64, n)

	for trial := 0; trial < 20; trial++ {
		for i := range n {
			wNew[i] = w[i] + step*dir[i]
		}
		// Project onto orthant
		if c1 > 0 {
			for i := range n {
				if wNew[i]*w[i] < 0 {
					wNew[i] = 0
				}
			}
		}

		fNew := objFunc(wNew)
		if fNew <= fVal+c*step*dirDeriv {
			return step
		}
		step *= 0.5
	}
	return step // return last tried step even if not sufficient decrease
}
