package onnxemit

import (
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// encoderSession wraps a DynamicAdvancedSession for sequence encoders that
// map padded token ID batches to per-label emission scores.
type encoderSession struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	numLabels  int64
}

// newEncoderSession loads the ONNX encoder and creates an inference session.
// It validates the model's input/output tensor names and shapes against the
// label count declared by the bundle.
func newEncoderSession(modelPath string, numLabels int) (*encoderSession, error) {
	// The ONNX Runtime shared library ships alongside the encoder in the
	// bundle directory.
	libPath := filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")

	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	inputNames, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	// Expect a single [batch, seq, labels] output. The label axis may be
	// dynamic; when it is static it must match the bundle's label count.
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}
	outputName := outputs[0].Name
	dims := outputs[0].Dimensions
	if len(dims) != 3 {
		return nil, fmt.Errorf("onnx: expected 3D output tensor, got %v", dims)
	}
	if dims[2] > 0 && dims[2] != int64(numLabels) {
		return nil, fmt.Errorf("onnx: model emits %d labels, bundle declares %d", dims[2], numLabels)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(4)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		[]string{outputName},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &encoderSession{
		session:    session,
		inputNames: inputNames,
		outputName: outputName,
		numLabels:  int64(numLabels),
	}, nil
}

// validateInputs checks that the model has the expected encoder inputs and
// returns them in the correct order.
func validateInputs(inputs []ort.InputOutputInfo) ([]string, error) {
	nameSet := make(map[string]bool, len(inputs))
	for _, inp := range inputs {
		nameSet[inp.Name] = true
	}
	required := []string{"token_ids", "lengths"}
	for _, name := range required {
		if !nameSet[name] {
			return nil, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	return required, nil
}

// infer runs a single inference call. tokenIDs is a flat [batchSize * seqLen]
// slice and lengths holds one true length per batch row. Returns the raw
// output tensor data as a flat float32 slice of shape
// [batchSize * seqLen * numLabels].
func (s *encoderSession) infer(tokenIDs, lengths []int64, batchSize, seqLen int64) ([]float32, error) {
	tIDs, err := ort.NewTensor(ort.NewShape(batchSize, seqLen), tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create token_ids tensor: %w", err)
	}
	defer tIDs.Destroy()

	tLens, err := ort.NewTensor(ort.NewShape(batchSize), lengths)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create lengths tensor: %w", err)
	}
	defer tLens.Destroy()

	outShape := ort.NewShape(batchSize, seqLen, s.numLabels)
	tOut, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	err = s.session.Run(
		[]ort.Value{tIDs, tLens},
		[]ort.Value{tOut},
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before tensor is destroyed.
	src := tOut.GetData()
	result := make([]float32, len(src))
	copy(result, src)
	return result, nil
}

// close releases the ONNX session resources.
func (s *encoderSession) close() error {
	return s.session.Destroy()
}
