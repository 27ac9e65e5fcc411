package nn

import (
	"github.com/chewxy/math32"

	"github.com/voxstyle/voxstyle/ml"
)

// Linear is a fully connected layer over (batch, features) inputs. Weight
// is (out, in).
type Linear struct {
	Weight ml.Tensor
	Bias   ml.Tensor
}

func NewLinear(ctx ml.Context, in, out int) *Linear {
	limit := 1 / math32.Sqrt(float32(in))
	return &Linear{
		Weight: ctx.Rand(out, in).Scale(ctx, float64(limit)),
		Bias:   ctx.Rand(out).Scale(ctx, float64(limit)),
	}
}

func (m *Linear) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	t = m.Weight.Mulmat(ctx, t)
	if m.Bias != nil {
		t = t.Add(ctx, m.Bias.Reshape(ctx, 1, m.Bias.Dim(0)))
	}

	return t
}

func (m *Linear) Parameters() map[string]ml.Tensor {
	return map[string]ml.Tensor{"weight": m.Weight, "bias": m.Bias}
}
