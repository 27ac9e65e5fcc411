package ml_test

import (
	"testing"

	"github.com/voxstyle/voxstyle/ml"
	_ "github.com/voxstyle/voxstyle/ml/backend/dense"
)

func TestDump(t *testing.T) {
	b, err := ml.NewBackend("dense", ml.BackendParams{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)

	ctx := b.NewContext()
	t.Cleanup(ctx.Close)

	t.Run("matrix", func(t *testing.T) {
		x := ctx.Arange(1, 7, 1).Reshape(ctx, 2, 3)

		want := "[[1.0000, 2.0000, 3.0000],\n [4.0000, 5.0000, 6.0000]]"
		if got := ml.Dump(x); got != want {
			t.Errorf("Dump() = %q, want %q", got, want)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		x := ctx.Arange(0, 10, 1)

		want := "[0.00, 1.00, ..., 8.00, 9.00]"
		if got := ml.Dump(x, ml.DumpOptions{Items: 2, Precision: 2}); got != want {
			t.Errorf("Dump() = %q, want %q", got, want)
		}
	})
}
