// Package convert imports model weights trained elsewhere. The only
// supported source is a PyTorch state dict (.pt/.pth); values land in the
// backend as float32 regardless of how they were stored.
package convert

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/voxstyle/voxstyle/ml"
)

// Tensor is one named weight read from a checkpoint.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// ParseTorch reads every tensor from a PyTorch state dict. The optional
// replacer rewrites source names into this module's parameter names.
func ParseTorch(path string, replacer *strings.Replacer) ([]Tensor, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	dict, ok := pt.(*types.Dict)
	if !ok {
		return nil, fmt.Errorf("%s: expected a state dict, got %T", path, pt)
	}

	var ts []Tensor
	for _, k := range dict.Keys() {
		name, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("%s: non-string key %v", path, k)
		}

		t, ok := dict.MustGet(k).(*pytorch.Tensor)
		if !ok {
			slog.Debug("skipping non-tensor entry", "name", name)
			continue
		}

		data, err := storageFloats(t.Source)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, name, err)
		}

		if replacer != nil {
			name = replacer.Replace(name)
		}

		ts = append(ts, Tensor{
			Name:  name,
			Shape: append([]int(nil), t.Size...),
			Data:  data,
		})
	}

	return ts, nil
}

func storageFloats(s pytorch.StorageInterface) ([]float32, error) {
	switch s := s.(type) {
	case *pytorch.FloatStorage:
		return s.Data, nil
	case *pytorch.HalfStorage:
		return s.Data, nil
	case *pytorch.BFloat16Storage:
		return s.Data, nil
	case *pytorch.DoubleStorage:
		f32s := make([]float32, len(s.Data))
		for i, v := range s.Data {
			f32s[i] = float32(v)
		}
		return f32s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %T", s)
	}
}

// LoadStateDict copies parsed tensors into a model's parameters by name,
// checking element counts. Every source tensor must find a destination;
// destinations with no source keep their initialization.
func LoadStateDict(ctx ml.Context, params map[string]ml.Tensor, ts []Tensor) error {
	for _, t := range ts {
		dst, ok := params[t.Name]
		if !ok {
			return fmt.Errorf("no parameter named %q", t.Name)
		}

		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		if len(t.Data) != n || n != elements(dst.Shape()) {
			return fmt.Errorf("parameter %q: cannot load shape %v into %v", t.Name, t.Shape, dst.Shape())
		}

		src, err := ctx.FromFloatSlice(t.Data, t.Shape...)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", t.Name, err)
		}
		src.Copy(ctx, dst)
	}

	return nil
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}

	return n
}
