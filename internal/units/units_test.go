package units

import (
	"errors"
	"math"
	"testing"
)

func TestPreferred(t *testing.T) {
	cases := []struct {
		system System
		in     string
		want   string
	}{
		{EN, "m", "ft"},
		{EN, "ft", "ft"},
		{SI, "cfs", "cms"},
		{SI, "kcfs", "kcms"},
		{EN, "mm", "in"},
		{SI, "%", "%"},
	}
	for _, tc := range cases {
		if got := tc.system.Preferred(tc.in); got != tc.want {
			t.Fatalf("%s.Preferred(%q) = %q, want %q", tc.system, tc.in, got, tc.want)
		}
	}
}

func TestTableConverter(t *testing.T) {
	c := NewTableConverter()
	got, err := c.Convert(10, "m", "ft")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if math.Abs(got-32.8083989501) > 1e-6 {
		t.Fatalf("unexpected m->ft %f", got)
	}
	back, err := c.Convert(got, "ft", "m")
	if err != nil {
		t.Fatalf("convert back: %v", err)
	}
	if math.Abs(back-10) > 1e-9 {
		t.Fatalf("unexpected ft->m %f", back)
	}
	if _, err := c.Convert(1, "ft", "cfs"); !errors.Is(err, ErrUnknownConversion) {
		t.Fatalf("expected unknown conversion, got %v", err)
	}
}

func TestParseSystem(t *testing.T) {
	if s, err := ParseSystem(""); err != nil || s != EN {
		t.Fatalf("expected EN default, got %q %v", s, err)
	}
	if s, err := ParseSystem("si"); err != nil || s != SI {
		t.Fatalf("expected SI, got %q %v", s, err)
	}
	if _, err := ParseSystem("xx"); err == nil {
		t.Fatalf("expected error")
	}
}
