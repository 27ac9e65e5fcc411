package dense_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestAvgPool3D(t *testing.T) {
	ctx := setup(t)

	ones := fromFloats(t, ctx, []float32{1, 1, 1, 1, 1, 1, 1, 1}, 1, 1, 2, 2, 2)

	t.Run("exclude pad", func(t *testing.T) {
		// k3 s2 p1 on a 2^3 volume covers all eight voxels; with padded
		// cells excluded from the divisor the average of ones stays 1.
		got := ones.AvgPool3D(ctx, 3, 2, 1, false)
		if diff := cmp.Diff([]int{1, 1, 1, 1, 1}, got.Shape()); diff != "" {
			t.Fatal(diff)
		}
		if diff := cmp.Diff([]float32{1}, got.Floats()); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("include pad", func(t *testing.T) {
		got := ones.AvgPool3D(ctx, 3, 2, 1, true)
		if diff := cmp.Diff([]float32{8.0 / 27}, got.Floats(), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("k2 s2", func(t *testing.T) {
		x := ctx.Arange(1, 9, 1).Reshape(ctx, 1, 1, 2, 2, 2)
		got := x.AvgPool3D(ctx, 2, 2, 0, false)
		if diff := cmp.Diff([]float32{4.5}, got.Floats()); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("identity", func(t *testing.T) {
		x := ctx.Rand(1, 2, 3, 3, 3)
		got := x.AvgPool3D(ctx, 1, 1, 0, false)
		if diff := cmp.Diff(x.Floats(), got.Floats()); diff != "" {
			t.Error(diff)
		}
	})
}

func TestAvgPool3DHalves(t *testing.T) {
	ctx := setup(t)

	// The downsampling geometry between discriminator scales.
	x := ctx.Rand(1, 3, 8, 8, 8)
	got := x.AvgPool3D(ctx, 3, 2, 1, false)
	if diff := cmp.Diff([]int{1, 3, 4, 4, 4}, got.Shape()); diff != "" {
		t.Error(diff)
	}
}

func TestUpsample3D(t *testing.T) {
	ctx := setup(t)

	x := fromFloats(t, ctx, []float32{1, 2, 3, 4}, 1, 1, 1, 2, 2)
	got := x.Upsample3D(ctx, 2)

	if diff := cmp.Diff([]int{1, 1, 2, 4, 4}, got.Shape()); diff != "" {
		t.Fatal(diff)
	}

	plane := []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}
	want := append(append([]float32{}, plane...), plane...)
	if diff := cmp.Diff(want, got.Floats()); diff != "" {
		t.Error(diff)
	}
}
