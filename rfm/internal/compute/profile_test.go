package compute

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func sampleRecords() []types.Record {
	return []types.Record{
		{CustomerID: "A", Segment: "Champions", Age: 30, RecencyDays: 10, Frequency: 6, MonetaryValue: decimal.NewFromInt(600)},
		{CustomerID: "B", Segment: "Champions", Age: 40, RecencyDays: 20, Frequency: 4, MonetaryValue: decimal.NewFromInt(400)},
		{CustomerID: "C", Segment: "At Risk", Age: 50, RecencyDays: 300, Frequency: 1, MonetaryValue: decimal.RequireFromString("50.50")},
		{CustomerID: "D", Segment: "Others", Age: 20, RecencyDays: 100, Frequency: 1, MonetaryValue: decimal.NewFromInt(30)},
	}
}

func TestProfiles(t *testing.T) {
	profiles := Profiles(sampleRecords())
	if len(profiles) != 3 {
		t.Fatalf("len(profiles) = %d, want 3", len(profiles))
	}

	// Sorted by segment name.
	wantOrder := []string{"At Risk", "Champions", "Others"}
	for i, p := range profiles {
		if p.Segment != wantOrder[i] {
			t.Errorf("profiles[%d].Segment = %q, want %q", i, p.Segment, wantOrder[i])
		}
	}

	champ := profiles[1]
	if champ.Customers != 2 {
		t.Errorf("Champions customers = %d, want 2", champ.Customers)
	}
	if !almostEqual(champ.Percentage, 50, 0.001) {
		t.Errorf("Champions percentage = %.3f, want 50", champ.Percentage)
	}
	if !almostEqual(champ.AvgRecency, 15, 0.001) {
		t.Errorf("Champions avg recency = %.3f, want 15", champ.AvgRecency)
	}
	if !almostEqual(champ.AvgFrequency, 5, 0.001) {
		t.Errorf("Champions avg frequency = %.3f, want 5", champ.AvgFrequency)
	}
	if !champ.AvgMonetary.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Champions avg monetary = %s, want 500", champ.AvgMonetary)
	}
	if !almostEqual(champ.AvgAge, 35, 0.001) {
		t.Errorf("Champions avg age = %.3f, want 35", champ.AvgAge)
	}
}

func TestProfiles_Empty(t *testing.T) {
	if got := Profiles(nil); got != nil {
		t.Errorf("Profiles(nil) = %v, want nil", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRecords(), refDate.Add(5*time.Hour))

	if s.Customers != 4 {
		t.Errorf("Customers = %d, want 4", s.Customers)
	}
	if s.Transactions != 12 {
		t.Errorf("Transactions = %d, want 12", s.Transactions)
	}
	if !s.TotalRevenue.Equal(decimal.RequireFromString("1080.50")) {
		t.Errorf("TotalRevenue = %s, want 1080.50", s.TotalRevenue)
	}
	// 1080.50 / 12 = 90.041666… → 90.04
	if !s.AvgOrderValue.Equal(decimal.RequireFromString("90.04")) {
		t.Errorf("AvgOrderValue = %s, want 90.04", s.AvgOrderValue)
	}
	if s.RepeatCustomers != 2 {
		t.Errorf("RepeatCustomers = %d, want 2", s.RepeatCustomers)
	}
	if !almostEqual(s.RepeatRate, 50, 0.001) {
		t.Errorf("RepeatRate = %.3f, want 50", s.RepeatRate)
	}
	if !s.ReferenceDate.Equal(refDate) {
		t.Errorf("ReferenceDate = %v, want %v", s.ReferenceDate, refDate)
	}
}
