package field

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInputSize is returned by DenseLayer.Forward when the input vector does
// not match the layer's input size. Inputs are never truncated or padded.
var ErrInputSize = errors.New("input length does not match layer input size")

// DenseLayer is a single affine transform: out = W'x + b. Weights are
// stored input-major (row i holds the outgoing weights of input i) and are
// fixed at construction; there is no training path anywhere in this module.
type DenseLayer struct {
	inputSize  int
	outputSize int
	weights    *mat.Dense    // inputSize x outputSize
	bias       *mat.VecDense // nil when bias is disabled
}

// NewDenseLayer constructs a layer with Xavier/Glorot uniform weights
// sampled from [-limit, limit], limit = sqrt(6/(inputSize+outputSize)),
// and a zero bias when useBias is set. src seeds the weight sampling; a nil
// src falls back to the global generator (fine outside tests).
func NewDenseLayer(inputSize, outputSize int, useBias bool, src rand.Source) (*DenseLayer, error) {
	if inputSize < 1 || outputSize < 1 {
		return nil, fmt.Errorf("dense layer sizes must be positive, got %dx%d", inputSize, outputSize)
	}

	limit := math.Sqrt(6 / float64(inputSize+outputSize))
	dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}

	data := make([]float64, inputSize*outputSize)
	for i := range data {
		data[i] = dist.Rand()
	}

	l := &DenseLayer{
		inputSize:  inputSize,
		outputSize: outputSize,
		weights:    mat.NewDense(inputSize, outputSize, data),
	}
	if useBias {
		l.bias = mat.NewVecDense(outputSize, nil)
	}
	return l, nil
}

// InputSize returns the expected input vector length.
func (l *DenseLayer) InputSize() int { return l.inputSize }

// OutputSize returns the produced output vector length.
func (l *DenseLayer) OutputSize() int { return l.outputSize }

// Forward applies the affine transform to input. No activation is applied;
// callers insert ReLU/Sigmoid between layers as their network requires.
func (l *DenseLayer) Forward(input []float64) ([]float64, error) {
	if len(input) != l.inputSize {
		return nil, fmt.Errorf("%w: layer takes %d inputs, got %d", ErrInputSize, l.inputSize, len(input))
	}
	return l.forward(input), nil
}

// forward skips the length check for layer chains whose sizes are
// established at construction.
func (l *DenseLayer) forward(input []float64) []float64 {
	x := mat.NewVecDense(l.inputSize, input)
	out := make([]float64, l.outputSize)
	y := mat.NewVecDense(l.outputSize, out)

	y.MulVec(l.weights.T(), x)
	if l.bias != nil {
		y.AddVec(y, l.bias)
	}
	return out
}
