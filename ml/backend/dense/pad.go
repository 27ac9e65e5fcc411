package dense

import (
	"fmt"

	"github.com/voxstyle/voxstyle/ml"
)

// Pad3D pads the three spatial axes of a (b, c, d, h, w) volume by p voxels
// on every face. Reflect padding mirrors about the face voxel without
// repeating it and therefore requires p < the axis size.
func (t *Tensor) Pad3D(ctx ml.Context, p int, mode ml.PadMode) ml.Tensor {
	shape := t.t.Shape()
	if len(shape) != 5 {
		panic("pad3d requires a 5D tensor")
	}
	if p < 0 || !mode.Valid() {
		panic(fmt.Sprintf("invalid padding %d (%s)", p, mode))
	}
	if p == 0 {
		return newTensor(ctx.(*Context), shape, t.Floats())
	}

	batch, channels, depth, height, width := shape[0], shape[1], shape[2], shape[3], shape[4]
	if mode == ml.PadReflect && p >= min(depth, height, width) {
		panic(fmt.Sprintf("reflect padding %d too large for input %v", p, shape))
	}

	outDepth, outHeight, outWidth := depth+2*p, height+2*p, width+2*p

	s := t.floats()
	out := make([]float32, batch*channels*outDepth*outHeight*outWidth)

	var i int
	for bc := 0; bc < batch*channels; bc++ {
		src := s[bc*depth*height*width:]
		for d := -p; d < depth+p; d++ {
			sd, okd := resolve(d, depth, mode)
			for h := -p; h < height+p; h++ {
				sh, okh := resolve(h, height, mode)
				for w := -p; w < width+p; w++ {
					sw, okw := resolve(w, width, mode)
					if okd && okh && okw {
						out[i] = src[(sd*height+sh)*width+sw]
					}
					i++
				}
			}
		}
	}

	return newTensor(ctx.(*Context), []int{batch, channels, outDepth, outHeight, outWidth}, out)
}

// resolve maps a possibly out-of-range coordinate onto a source index. The
// second return is false when the cell stays zero (zero padding).
func resolve(q, size int, mode ml.PadMode) (int, bool) {
	if q >= 0 && q < size {
		return q, true
	}

	switch mode {
	case ml.PadZero:
		return 0, false
	case ml.PadReplicate:
		if q < 0 {
			return 0, true
		}
		return size - 1, true
	case ml.PadReflect:
		if q < 0 {
			return -q, true
		}
		return 2*size - 2 - q, true
	case ml.PadCircular:
		return ((q % size) + size) % size, true
	default:
		panic("unknown padding mode")
	}
}
