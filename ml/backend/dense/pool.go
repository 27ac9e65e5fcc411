package dense

import (
	"fmt"

	"github.com/voxstyle/voxstyle/ml"
)

func (t *Tensor) AvgPool3D(ctx ml.Context, kernel, stride, padding int, countIncludePad bool) ml.Tensor {
	shape := t.t.Shape()
	if len(shape) != 5 {
		panic("avgpool3d requires a 5D tensor")
	}
	if kernel < 1 || stride < 1 || padding < 0 || padding > kernel/2 {
		panic(fmt.Sprintf("invalid pooling geometry k=%d s=%d p=%d", kernel, stride, padding))
	}

	batch, channels, depth, height, width := shape[0], shape[1], shape[2], shape[3], shape[4]
	outDepth := (depth+2*padding-kernel)/stride + 1
	outHeight := (height+2*padding-kernel)/stride + 1
	outWidth := (width+2*padding-kernel)/stride + 1
	if outDepth < 1 || outHeight < 1 || outWidth < 1 {
		panic(fmt.Sprintf("pooling kernel %d exceeds input %v", kernel, shape))
	}

	s := t.floats()
	out := make([]float32, batch*channels*outDepth*outHeight*outWidth)

	var i int
	for bc := 0; bc < batch*channels; bc++ {
		src := s[bc*depth*height*width:]
		for od := 0; od < outDepth; od++ {
			for oh := 0; oh < outHeight; oh++ {
				for ow := 0; ow < outWidth; ow++ {
					var sum float64
					var n int
					for kd := 0; kd < kernel; kd++ {
						d := od*stride - padding + kd
						if d < 0 || d >= depth {
							continue
						}
						for kh := 0; kh < kernel; kh++ {
							h := oh*stride - padding + kh
							if h < 0 || h >= height {
								continue
							}
							for kw := 0; kw < kernel; kw++ {
								w := ow*stride - padding + kw
								if w < 0 || w >= width {
									continue
								}
								sum += float64(src[(d*height+h)*width+w])
								n++
							}
						}
					}

					if countIncludePad {
						n = kernel * kernel * kernel
					}
					out[i] = float32(sum / float64(n))
					i++
				}
			}
		}
	}

	return newTensor(ctx.(*Context), []int{batch, channels, outDepth, outHeight, outWidth}, out)
}

func (t *Tensor) Upsample3D(ctx ml.Context, scale int) ml.Tensor {
	shape := t.t.Shape()
	if len(shape) != 5 {
		panic("upsample3d requires a 5D tensor")
	}
	if scale < 1 {
		panic("upsample3d requires a positive scale")
	}

	batch, channels, depth, height, width := shape[0], shape[1], shape[2], shape[3], shape[4]
	outDepth, outHeight, outWidth := depth*scale, height*scale, width*scale

	s := t.floats()
	out := make([]float32, batch*channels*outDepth*outHeight*outWidth)

	var i int
	for bc := 0; bc < batch*channels; bc++ {
		src := s[bc*depth*height*width:]
		for d := 0; d < outDepth; d++ {
			for h := 0; h < outHeight; h++ {
				base := ((d/scale)*height + h/scale) * width
				for w := 0; w < outWidth; w++ {
					out[i] = src[base+w/scale]
					i++
				}
			}
		}
	}

	return newTensor(ctx.(*Context), []int{batch, channels, outDepth, outHeight, outWidth}, out)
}
