package nn

import (
	"fmt"

	"github.com/voxstyle/voxstyle/ml"
)

// ActivationKind is a closed set of nonlinearities. Kinds resolve to
// concrete strategies at construction; nothing is dispatched by name in a
// forward pass.
type ActivationKind uint32

const (
	ActivationNone ActivationKind = iota
	ActivationReLU
	ActivationLeakyReLU
	ActivationPReLU
	ActivationSELU
	ActivationTanh
)

func (k ActivationKind) String() string {
	switch k {
	case ActivationNone:
		return "none"
	case ActivationReLU:
		return "relu"
	case ActivationLeakyReLU:
		return "lrelu"
	case ActivationPReLU:
		return "prelu"
	case ActivationSELU:
		return "selu"
	case ActivationTanh:
		return "tanh"
	default:
		return "unknown"
	}
}

type Activation interface {
	Forward(ctx ml.Context, t ml.Tensor) ml.Tensor
}

// NewActivation resolves a kind to its strategy. ActivationNone yields an
// identity. PReLU allocates its learned slope, initialized to 0.25.
func NewActivation(ctx ml.Context, kind ActivationKind) (Activation, error) {
	switch kind {
	case ActivationNone:
		return identity{}, nil
	case ActivationReLU:
		return relu{}, nil
	case ActivationLeakyReLU:
		return leakyReLU{slope: 0.2}, nil
	case ActivationPReLU:
		slope, err := ctx.FromFloatSlice([]float32{0.25}, 1)
		if err != nil {
			return nil, err
		}
		return &PReLU{Slope: slope}, nil
	case ActivationSELU:
		return selu{}, nil
	case ActivationTanh:
		return tanh{}, nil
	default:
		return nil, fmt.Errorf("unknown activation kind %d", kind)
	}
}

type identity struct{}

func (identity) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor { return t }

type relu struct{}

func (relu) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor { return t.RELU(ctx) }

type leakyReLU struct {
	slope float32
}

func (m leakyReLU) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return t.LeakyRELU(ctx, m.slope)
}

type selu struct{}

func (selu) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor { return t.SELU(ctx) }

type tanh struct{}

func (tanh) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor { return t.Tanh(ctx) }

// PReLU is a rectifier with a learned negative slope shared across
// channels.
type PReLU struct {
	Slope ml.Tensor
}

// Forward computes relu(x) - slope*relu(-x).
func (m *PReLU) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return t.RELU(ctx).Sub(ctx, t.Neg(ctx).RELU(ctx).Mul(ctx, m.Slope))
}

func (m *PReLU) Parameters() map[string]ml.Tensor {
	return map[string]ml.Tensor{"slope": m.Slope}
}
