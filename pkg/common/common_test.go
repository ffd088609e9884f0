package common

import (
	"reflect"
	"testing"
)

func TestUnionIDs(t *testing.T) {
	tests := []struct {
		name  string
		base  []string
		extra []string
		want  []string
	}{
		{
			name:  "appends new ids in order",
			base:  []string{"a", "b"},
			extra: []string{"c", "d"},
			want:  []string{"a", "b", "c", "d"},
		},
		{
			name:  "skips duplicates",
			base:  []string{"a", "b"},
			extra: []string{"b", "a", "c"},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "skips empty ids",
			base:  []string{"a"},
			extra: []string{"", "b"},
			want:  []string{"a", "b"},
		},
		{
			name:  "nil base",
			base:  nil,
			extra: []string{"a"},
			want:  []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnionIDs(tt.base, tt.extra)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("UnionIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddSourceIDsNeverShrinks(t *testing.T) {
	e := Entity{Name: "A", SourceIDs: []string{"c1"}}
	e.AddSourceIDs("c2", "c1")
	e.AddSourceIDs()

	want := []string{"c1", "c2"}
	if !reflect.DeepEqual(e.SourceIDs, want) {
		t.Errorf("got %v, want %v", e.SourceIDs, want)
	}
}
