package dense

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/voxstyle/voxstyle/ml"
)

// Conv3D lowers convolution to im2col followed by one GEMM per sample: the
// kernel flattens to a (out, in·k³) matrix and the input windows to an
// (in·k³, voxels) matrix. The im2col fill runs in parallel across output
// depth slices.
func (t *Tensor) Conv3D(ctx ml.Context, t2 ml.Tensor, stride int) ml.Tensor {
	w, x := t, t2.(*Tensor)
	wshape, xshape := w.t.Shape(), x.t.Shape()
	if len(wshape) != 5 || len(xshape) != 5 {
		panic("conv3d requires 5D tensors")
	}
	if wshape[2] != wshape[3] || wshape[2] != wshape[4] {
		panic(fmt.Sprintf("conv3d requires a cubic kernel, got %v", wshape))
	}
	if wshape[1] != xshape[1] {
		panic(fmt.Sprintf("conv3d channel mismatch: kernel %v input %v", wshape, xshape))
	}
	if stride < 1 {
		panic("conv3d requires a positive stride")
	}

	batch, channels, depth, height, width := xshape[0], xshape[1], xshape[2], xshape[3], xshape[4]
	out, k := wshape[0], wshape[2]

	outDepth := (depth-k)/stride + 1
	outHeight := (height-k)/stride + 1
	outWidth := (width-k)/stride + 1
	if outDepth < 1 || outHeight < 1 || outWidth < 1 {
		panic(fmt.Sprintf("conv3d kernel %d exceeds input %v", k, xshape))
	}

	voxels := outDepth * outHeight * outWidth
	rows := channels * k * k * k

	kernel := blas32.General{
		Rows:   out,
		Cols:   rows,
		Stride: rows,
		Data:   w.floats(),
	}

	c := ctx.(*Context)
	xs := x.floats()
	outData := make([]float32, batch*out*voxels)

	for b := 0; b < batch; b++ {
		cols := make([]float32, rows*voxels)

		var g errgroup.Group
		g.SetLimit(c.b.threads)
		for od := 0; od < outDepth; od++ {
			g.Go(func() error {
				for ch := 0; ch < channels; ch++ {
					src := xs[(b*channels+ch)*depth*height*width:]
					for kd := 0; kd < k; kd++ {
						for kh := 0; kh < k; kh++ {
							for kw := 0; kw < k; kw++ {
								row := ((ch*k+kd)*k+kh)*k + kw
								d := od*stride + kd
								for oh := 0; oh < outHeight; oh++ {
									h := oh*stride + kh
									dst := cols[row*voxels+(od*outHeight+oh)*outWidth:]
									in := src[(d*height+h)*width+kw:]
									for ow := 0; ow < outWidth; ow++ {
										dst[ow] = in[ow*stride]
									}
								}
							}
						}
					}
				}
				return nil
			})
		}
		g.Wait()

		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			kernel,
			blas32.General{Rows: rows, Cols: voxels, Stride: voxels, Data: cols},
			0,
			blas32.General{Rows: out, Cols: voxels, Stride: voxels, Data: outData[b*out*voxels:]},
		)
	}

	return newTensor(c, []int{batch, out, outDepth, outHeight, outWidth}, outData)
}
