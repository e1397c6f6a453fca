package types

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFieldType_Matches(t *testing.T) {
	tests := []struct {
		typ   FieldType
		value interface{}
		want  bool
	}{
		{FieldString, "foo", true},
		{FieldString, 42, false},
		{FieldNumber, float64(1.5), true},
		{FieldNumber, int64(7), true},
		{FieldNumber, "7", false},
		{FieldBoolean, true, true},
		{FieldBoolean, "true", false},
		{FieldString, nil, true},
		{FieldType("blob"), "x", false},
	}

	for _, tt := range tests {
		if got := tt.typ.Matches(tt.value); got != tt.want {
			t.Errorf("%s.Matches(%#v) = %v, want %v", tt.typ, tt.value, got, tt.want)
		}
	}
}

func TestBucketSchema_Validate(t *testing.T) {
	good := BucketSchema{Version: 1, Index: map[string]IndexField{"name": {Type: FieldString}}}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := BucketSchema{Index: map[string]IndexField{"name": {Type: "blob"}}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidFieldType) {
		t.Errorf("expected ErrInvalidFieldType, got %v", err)
	}

	negative := BucketSchema{Version: -1}
	if err := negative.Validate(); !errors.Is(err, ErrNegativeVersion) {
		t.Errorf("expected ErrNegativeVersion, got %v", err)
	}
}

func TestBucketSchema_CheckUpgrade(t *testing.T) {
	v0 := BucketSchema{Version: 0}
	v1 := v0.WithField("indexed_field_string_1", IndexField{Type: FieldString}, 1)

	if err := v0.CheckUpgrade(v1); err != nil {
		t.Fatalf("additive upgrade rejected: %v", err)
	}
	if err := v1.CheckUpgrade(v0); !errors.Is(err, ErrVersionNotIncreasing) {
		t.Errorf("expected ErrVersionNotIncreasing, got %v", err)
	}

	dropped := BucketSchema{Version: 2}
	if err := v1.CheckUpgrade(dropped); !errors.Is(err, ErrNonAdditiveUpgrade) {
		t.Errorf("expected ErrNonAdditiveUpgrade for dropped field, got %v", err)
	}

	retyped := v1.WithField("indexed_field_string_1", IndexField{Type: FieldNumber}, 2)
	if err := v1.CheckUpgrade(retyped); !errors.Is(err, ErrNonAdditiveUpgrade) {
		t.Errorf("expected ErrNonAdditiveUpgrade for retyped field, got %v", err)
	}
}

func TestBucketSchema_WithFieldDoesNotMutate(t *testing.T) {
	v0 := BucketSchema{Version: 0, Index: map[string]IndexField{}}
	_ = v0.WithField("a", IndexField{Type: FieldString}, 1)
	if len(v0.Index) != 0 || v0.Version != 0 {
		t.Errorf("WithField mutated the receiver: %+v", v0)
	}
}

func TestProperty_AdditiveUpgradesAccepted(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("adding a field with a higher version is always a valid upgrade", prop.ForAll(
		func(version, bump int, name string) bool {
			base := BucketSchema{Version: version, Index: map[string]IndexField{"existing": {Type: FieldNumber}}}
			next := base.WithField("f_"+name, IndexField{Type: FieldString}, version+bump)
			return base.CheckUpgrade(next) == nil && next.Validate() == nil
		},
		gen.IntRange(0, 1000),
		gen.IntRange(1, 10),
		gen.AlphaString(),
	))

	properties.Property("keeping the version is never a valid upgrade", prop.ForAll(
		func(version int) bool {
			base := BucketSchema{Version: version}
			return errors.Is(base.CheckUpgrade(base.WithField("x", IndexField{Type: FieldString}, version)), ErrVersionNotIncreasing)
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func TestNewRecordKey_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		k := NewRecordKey()
		if seen[k] {
			t.Fatalf("duplicate key %s", k)
		}
		seen[k] = true
	}
}

func TestNewBucketName(t *testing.T) {
	name := NewBucketName("reindex_benchmark_")
	if len(name) != len("reindex_benchmark_")+7 {
		t.Errorf("unexpected bucket name %q", name)
	}
}
