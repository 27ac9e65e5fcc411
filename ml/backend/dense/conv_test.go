package dense_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/voxstyle/voxstyle/ml"
)

func TestConv3DPointwise(t *testing.T) {
	ctx := setup(t)

	x := ctx.Arange(1, 9, 1).Reshape(ctx, 1, 1, 2, 2, 2)
	w := fromFloats(t, ctx, []float32{2}, 1, 1, 1, 1, 1)

	got := w.Conv3D(ctx, x, 1)
	want := []float32{2, 4, 6, 8, 10, 12, 14, 16}
	if diff := cmp.Diff(want, got.Floats()); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff(x.Shape(), got.Shape()); diff != "" {
		t.Error(diff)
	}
}

func TestConv3DSum(t *testing.T) {
	ctx := setup(t)

	// A full-size all-ones kernel sums the volume: 1+2+...+8 = 36.
	x := ctx.Arange(1, 9, 1).Reshape(ctx, 1, 1, 2, 2, 2)
	w := fromFloats(t, ctx, []float32{1, 1, 1, 1, 1, 1, 1, 1}, 1, 1, 2, 2, 2)

	got := w.Conv3D(ctx, x, 1)
	if diff := cmp.Diff([]float32{36}, got.Floats(), cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff([]int{1, 1, 1, 1, 1}, got.Shape()); diff != "" {
		t.Error(diff)
	}
}

func TestConv3DOutputChannels(t *testing.T) {
	ctx := setup(t)

	x := ctx.Arange(1, 9, 1).Reshape(ctx, 1, 1, 2, 2, 2)
	w := fromFloats(t, ctx, []float32{1, -1}, 2, 1, 1, 1, 1)

	got := w.Conv3D(ctx, x, 1)
	if diff := cmp.Diff([]int{1, 2, 2, 2, 2}, got.Shape()); diff != "" {
		t.Fatal(diff)
	}

	want := []float32{1, 2, 3, 4, 5, 6, 7, 8, -1, -2, -3, -4, -5, -6, -7, -8}
	if diff := cmp.Diff(want, got.Floats()); diff != "" {
		t.Error(diff)
	}
}

// naiveConv3D is the direct definition the GEMM path must agree with.
func naiveConv3D(w, x ml.Tensor, stride int) []float32 {
	batch, channels := x.Dim(0), x.Dim(1)
	depth, height, width := x.Dim(2), x.Dim(3), x.Dim(4)
	out, k := w.Dim(0), w.Dim(2)

	outDepth := (depth-k)/stride + 1
	outHeight := (height-k)/stride + 1
	outWidth := (width-k)/stride + 1

	ws, xs := w.Floats(), x.Floats()
	res := make([]float32, batch*out*outDepth*outHeight*outWidth)

	var i int
	for b := 0; b < batch; b++ {
		for o := 0; o < out; o++ {
			for od := 0; od < outDepth; od++ {
				for oh := 0; oh < outHeight; oh++ {
					for ow := 0; ow < outWidth; ow++ {
						var sum float64
						for c := 0; c < channels; c++ {
							for kd := 0; kd < k; kd++ {
								for kh := 0; kh < k; kh++ {
									for kw := 0; kw < k; kw++ {
										xi := (((b*channels+c)*depth+od*stride+kd)*height+oh*stride+kh)*width + ow*stride + kw
										wi := (((o*channels+c)*k+kd)*k+kh)*k + kw
										sum += float64(xs[xi]) * float64(ws[wi])
									}
								}
							}
						}
						res[i] = float32(sum)
						i++
					}
				}
			}
		}
	}

	return res
}

func TestConv3DMatchesNaive(t *testing.T) {
	ctx := setup(t)

	cases := map[string]struct {
		out, in, k, size, stride int
	}{
		"k3 s1":      {4, 3, 3, 5, 1},
		"k3 s2":      {4, 3, 3, 7, 2},
		"k4 s2":      {2, 2, 4, 8, 2},
		"k7 s1 wide": {3, 5, 7, 9, 1},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			x := ctx.Rand(2, tc.in, tc.size, tc.size, tc.size)
			w := ctx.Rand(tc.out, tc.in, tc.k, tc.k, tc.k)

			got := w.Conv3D(ctx, x, tc.stride)
			if diff := cmp.Diff(naiveConv3D(w, x, tc.stride), got.Floats(), cmpopts.EquateApprox(1e-4, 1e-5)); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestConv3DChannelMismatch(t *testing.T) {
	ctx := setup(t)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for channel mismatch")
		}
	}()

	ctx.Rand(1, 2, 3, 3, 3).Conv3D(ctx, ctx.Rand(1, 3, 4, 4, 4), 1)
}
