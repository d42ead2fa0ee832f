package compute

import (
	"fmt"
	"testing"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

func TestNtile_BucketSizes(t *testing.T) {
	tests := []struct {
		n, b int
		want []int // bucket sizes, 1..b
	}{
		{n: 10, b: 5, want: []int{2, 2, 2, 2, 2}},
		{n: 7, b: 5, want: []int{2, 2, 1, 1, 1}},
		{n: 13, b: 5, want: []int{3, 3, 3, 2, 2}},
		{n: 3, b: 5, want: []int{1, 1, 1, 0, 0}},
		{n: 1, b: 5, want: []int{1, 0, 0, 0, 0}},
		{n: 4, b: 1, want: []int{4}},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("n=%d/b=%d", tc.n, tc.b), func(t *testing.T) {
			got := make([]int, tc.b)
			prev := 1
			for i := 0; i < tc.n; i++ {
				bucket := ntile(i, tc.n, tc.b)
				if bucket < prev {
					t.Fatalf("bucket went backwards at position %d: %d after %d", i, bucket, prev)
				}
				if bucket < 1 || bucket > tc.b {
					t.Fatalf("position %d: bucket %d out of range", i, bucket)
				}
				prev = bucket
				got[bucket-1]++
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("bucket sizes = %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}

func TestAssignScores_TiesBrokenByCustomerID(t *testing.T) {
	// Ten customers share one frequency; ids decide the split.
	recs := make([]*types.Record, 10)
	for i := range recs {
		recs[9-i] = &types.Record{CustomerID: fmt.Sprintf("C%02d", i), Frequency: 1, RecencyDays: 10}
	}
	assignScores(recs, 5)

	for _, r := range recs {
		var idx int
		fmt.Sscanf(r.CustomerID, "C%02d", &idx)
		want := idx/2 + 1
		if r.FrequencyScore != want {
			t.Errorf("%s FrequencyScore = %d, want %d", r.CustomerID, r.FrequencyScore, want)
		}
		if r.RecencyScore != want {
			t.Errorf("%s RecencyScore = %d, want %d", r.CustomerID, r.RecencyScore, want)
		}
	}
}

func TestAssignScores_RecencyInverted(t *testing.T) {
	recs := []*types.Record{
		{CustomerID: "fresh", RecencyDays: 1},
		{CustomerID: "stale", RecencyDays: 400},
		{CustomerID: "mid", RecencyDays: 90},
		{CustomerID: "older", RecencyDays: 200},
		{CustomerID: "recent", RecencyDays: 30},
	}
	assignScores(recs, 5)

	want := map[string]int{"stale": 1, "older": 2, "mid": 3, "recent": 4, "fresh": 5}
	for _, r := range recs {
		if r.RecencyScore != want[r.CustomerID] {
			t.Errorf("%s RecencyScore = %d, want %d", r.CustomerID, r.RecencyScore, want[r.CustomerID])
		}
	}
}
