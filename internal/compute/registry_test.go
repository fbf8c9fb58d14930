package compute_test

import (
	"context"
	"errors"
	"testing"

	"github.com/seantiz/yieldlab/internal/compute"
	"github.com/seantiz/yieldlab/internal/model"
)

func constant(v float64) compute.Computation {
	return func(context.Context, any, model.Params) (model.Result, error) {
		return model.Result{"value": v}, nil
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := compute.NewRegistry()
	reg.Register("one", "returns one", constant(1))

	fn, err := reg.Resolve("one")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	res, err := fn(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("computation: %v", err)
	}
	if res["value"] != 1.0 {
		t.Errorf("value = %v, want 1", res["value"])
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg := compute.NewRegistry()
	_, err := reg.Resolve("nope")
	if !errors.Is(err, compute.ErrUnknownComputation) {
		t.Fatalf("Resolve error = %v, want ErrUnknownComputation", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	reg := compute.NewRegistry()
	reg.Register("x", "first", constant(1))
	reg.Register("x", "second", constant(2))

	fn, err := reg.Resolve("x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	res, _ := fn(context.Background(), nil, nil)
	if res["value"] != 2.0 {
		t.Errorf("value = %v, want 2 after overwrite", res["value"])
	}
	if list := reg.List(); len(list) != 1 || list[0].Description != "second" {
		t.Errorf("List() = %v, want single entry described as second", list)
	}
}

func TestRegistryListSorted(t *testing.T) {
	reg := compute.NewRegistry()
	compute.RegisterBuiltins(reg)

	list := reg.List()
	want := []string{
		compute.AirDensityAdjustedWindSpeed,
		compute.FlagRange,
		compute.FlagUnresponsive,
		compute.SumRows,
	}
	if len(list) != len(want) {
		t.Fatalf("List() returned %d computations, want %d", len(list), len(want))
	}
	for i, info := range list {
		if info.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, info.Name, want[i])
		}
		if info.Description == "" {
			t.Errorf("%s has no description", info.Name)
		}
	}
}
