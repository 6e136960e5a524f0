package normalization

import (
	"testing"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

type color string

func newColors() *EnumNormalizer[color] {
	return NewEnumNormalizer("color", map[string]color{
		"red":   "red",
		"Green": "green",
		"grn":   "green",
	}, "red")
}

func TestNormalize(t *testing.T) {
	n := newColors()
	tests := map[string]color{
		"red":       "red",
		"  GREEN  ": "green",
		"grn":       "green",
		"blue":      "red",
		"":          "red",
	}
	for in, want := range tests {
		if got := n.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeWithValidation(t *testing.T) {
	n := newColors()
	if v, err := n.NormalizeWithValidation(" Grn"); err != nil || v != "green" {
		t.Fatalf("unexpected result %q, %v", v, err)
	}
	_, err := n.NormalizeWithValidation("blue")
	if !errors.HasCategory(err, errors.CategoryValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	c, _ := errors.AsClassified(err)
	if valid, _ := c.Context().String("valid"); valid != "green, grn, red" {
		t.Errorf("unexpected valid list %q", valid)
	}
}

func TestIsValid(t *testing.T) {
	n := newColors()
	if !n.IsValid("RED") || !n.IsValid("grn") {
		t.Error("expected known values to be valid")
	}
	if n.IsValid("blue") || n.IsValid("") {
		t.Error("unknown input must not be valid even though it normalizes to the fallback")
	}
}
