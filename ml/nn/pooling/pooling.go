package pooling

import (
	"github.com/voxstyle/voxstyle/ml"
)

type Type uint32

const (
	TypeNone Type = iota
	TypeGlobalAvg
)

func (t Type) String() string {
	switch t {
	case TypeGlobalAvg:
		return "GlobalAvg"
	default:
		return "Unknown"
	}
}

// Forward collapses the spatial axes of a (b, c, d, h, w) volume. Global
// average pooling yields (b, c, 1, 1, 1) for any spatial size.
func (t Type) Forward(ctx ml.Context, hiddenStates ml.Tensor) ml.Tensor {
	switch t {
	case TypeNone:
		return hiddenStates
	case TypeGlobalAvg:
		return hiddenStates.Mean(ctx, 2, 3, 4)
	default:
		panic("unknown pooling type")
	}
}
