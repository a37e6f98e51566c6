package models

import (
	"reflect"
	"testing"
)

func TestDedupeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"no dupes", []string{"a", "b"}, []string{"a", "b"}},
		{"dupes removed keep first order", []string{"b", "a", "b", "a"}, []string{"b", "a"}},
		{"empties dropped", []string{"", "a", ""}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupeTags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DedupeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
