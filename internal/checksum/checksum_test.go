package checksum

import "testing"

func TestSum(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	c := Sum([]byte("world"))

	if a != b {
		t.Errorf("same input produced different sums: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different inputs produced the same sum")
	}
	if len(a) != 64 {
		t.Errorf("sum length = %d, want 64 hex chars", len(a))
	}
}
