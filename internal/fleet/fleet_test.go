package fleet

import (
	"reflect"
	"testing"
)

func TestProperties(t *testing.T) {
	props := Properties{
		"num":   " 1.5 ",
		"bad":   "x",
		"flag":  "true",
		"list":  "a, b,,c ",
		"other": "v",
	}

	if v, ok := props.Float("num"); !ok || v != 1.5 {
		t.Errorf("Float(num) = %v, %v", v, ok)
	}
	if _, ok := props.Float("bad"); ok {
		t.Error("malformed float should report false")
	}
	if _, ok := props.Float("missing"); ok {
		t.Error("missing key should report false")
	}
	if v, ok := props.Bool("flag"); !ok || !v {
		t.Errorf("Bool(flag) = %v, %v", v, ok)
	}
	if v, _ := props.List("list"); !reflect.DeepEqual(v, []string{"a", "b", "c"}) {
		t.Errorf("List(list) = %v", v)
	}
	if got := props.WithPrefix("n"); len(got) != 1 || got["num"] != " 1.5 " {
		t.Errorf("WithPrefix(n) = %v", got)
	}

	var nilProps Properties
	if _, ok := nilProps.Get("x"); ok {
		t.Error("nil properties should be empty")
	}
}

func TestStep(t *testing.T) {
	pure := Step{Destination: Point{Name: "A"}}
	if pure.Length() != 0 || pure.Moves() {
		t.Error("step without path should not move")
	}

	src := Point{Name: "A"}
	s := Step{Path: &Path{Name: "A --- B", Length: 1200}, Source: &src, Destination: Point{Name: "B"}}
	if s.Length() != 1200 || !s.Moves() {
		t.Errorf("unexpected step values: %d %v", s.Length(), s.Moves())
	}
	if s.String() != "Step(0: A -> B)" {
		t.Errorf("unexpected String: %s", s.String())
	}
}

func TestTripleDistance(t *testing.T) {
	a := Triple{X: 0, Y: 0}
	b := Triple{X: 3000, Y: 4000, Z: 99}
	if d := a.DistanceTo(b); d != 5000 {
		t.Errorf("expected 5000, got %v", d)
	}
}
