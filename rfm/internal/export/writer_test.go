package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/rfmstack/pkg/types"
	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
)

var refDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleResult() *compute.Result {
	recs := []types.Record{
		{
			CustomerID: "C2", Age: 41, Gender: "M", Location: "Denver, CO",
			RecencyDays: 12, Frequency: 3,
			MonetaryValue: decimal.RequireFromString("300.10"),
			AvgOrderValue: decimal.RequireFromString("100.0333"),
			FirstPurchase: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			LastPurchase:  time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC),
			RecencyScore:  2, FrequencyScore: 2, MonetaryScore: 2,
			RFMCode: "222", Segment: "Champions", Cluster: 0,
		},
		{
			CustomerID: "C1", Age: 30, Gender: "F", Location: "Austin",
			JoinDate:    time.Date(2022, 5, 14, 0, 0, 0, 0, time.UTC),
			RecencyDays: 200, Frequency: 1,
			MonetaryValue: decimal.RequireFromString("20"),
			AvgOrderValue: decimal.RequireFromString("20"),
			FirstPurchase: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			LastPurchase:  time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			RecencyScore:  1, FrequencyScore: 1, MonetaryScore: 1,
			RFMCode: "111", Segment: "At Risk", Cluster: 1,
		},
	}
	return &compute.Result{
		Records:     recs,
		Profiles:    compute.Profiles(recs),
		Summary:     compute.Summarize(recs, refDate),
		Correlation: compute.Correlations(recs),
	}
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWrite_CSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	paths, err := Write(dir, []string{"csv"}, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "customer_segments.csv"),
		filepath.Join(dir, "segment_profiles.csv"),
	}, paths)

	rows := readCSVFile(t, paths[0])
	require.Len(t, rows, 3)
	assert.Equal(t, recordHeader, rows[0])
	assert.Equal(t, []string{
		"C2", "41", "M", "Denver, CO", "",
		"12", "3", "300.1", "100.03",
		"2024-03-01", "2024-12-20",
		"2", "2", "2", "222", "Champions", "0",
	}, rows[1])
	assert.Equal(t, "2022-05-14", rows[2][4])
	assert.Equal(t, "1", rows[2][len(recordHeader)-1])

	profiles := readCSVFile(t, paths[1])
	require.Len(t, profiles, 3)
	assert.Equal(t, profileHeader, profiles[0])
	// Sorted by segment name.
	assert.Equal(t, []string{"At Risk", "1", "50.00", "200.00", "1.00", "20.00", "30.00"}, profiles[1])
	assert.Equal(t, "Champions", profiles[2][0])
}

func TestWrite_JSON(t *testing.T) {
	dir := t.TempDir()

	paths, err := Write(dir, []string{"json"}, sampleResult())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	data, err := os.ReadFile(filepath.Join(dir, "customer_segments.json"))
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(data, &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "C2", recs[0]["customer_id"])
	assert.Equal(t, "300.1", recs[0]["monetary_value"])
	assert.Equal(t, "222", recs[0]["rfm_code"])
	assert.EqualValues(t, 1, recs[1]["cluster"])
	assert.NotContains(t, recs[0], "join_date")

	data, err = os.ReadFile(filepath.Join(dir, "segment_profiles.json"))
	require.NoError(t, err)
	var doc struct {
		Summary     map[string]any   `json:"summary"`
		Segments    []map[string]any `json:"segments"`
		Correlation map[string]any   `json:"correlation"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "2025-01-01", doc.Summary["reference_date"])
	assert.EqualValues(t, 2, doc.Summary["customers"])
	assert.EqualValues(t, 4, doc.Summary["transactions"])
	assert.Equal(t, "320.1", doc.Summary["total_revenue"])
	assert.EqualValues(t, 50, doc.Summary["repeat_rate"])
	assert.Len(t, doc.Segments, 2)

	fields, ok := doc.Correlation["fields"].([]any)
	require.True(t, ok)
	assert.Equal(t, "recency_days", fields[0])
	values, ok := doc.Correlation["values"].([]any)
	require.True(t, ok)
	require.Len(t, values, 4)
	// Two customers: frequency and monetary rise together, recency falls.
	assert.EqualValues(t, 1, values[1].([]any)[2])
	assert.EqualValues(t, -1, values[0].([]any)[1])
}

func TestWrite_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, []string{"csv", "json"}, sampleResult())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"customer_segments.csv", "segment_profiles.csv",
		"customer_segments.json", "segment_profiles.json",
	}, names)
}

func TestWrite_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "customer_segments.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	_, err := Write(dir, []string{"csv"}, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, recordHeader, readCSVFile(t, path)[0])
}

func TestWrite_UnknownFormat(t *testing.T) {
	_, err := Write(t.TempDir(), []string{"parquet"}, sampleResult())
	assert.ErrorContains(t, err, "parquet")
}
