package utils

import (
	"math"
	"testing"
)

func TestHeaderCounterPerTopic(t *testing.T) {
	c := NewHeaderCounter()
	for want := uint32(0); want < 3; want++ {
		if got := c.Next("order"); got != want {
			t.Fatalf("order id %d, want %d", got, want)
		}
	}
	if got := c.Next("instantActions"); got != 0 {
		t.Errorf("instantActions starts at %d, want 0", got)
	}
}

func TestHeaderCounterWraps(t *testing.T) {
	c := NewHeaderCounter()
	c.next["order"] = math.MaxUint32
	if got := c.Next("order"); got != math.MaxUint32 {
		t.Fatalf("got %d, want MaxUint32", got)
	}
	if got := c.Next("order"); got != 0 {
		t.Errorf("got %d after wrap, want 0", got)
	}
}
