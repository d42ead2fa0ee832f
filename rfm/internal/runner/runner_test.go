package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
	"github.com/obsidianstack/rfmstack/rfm/internal/config"
)

const customersCSV = `customer_id,customer_age,gender,location,join_date
C1,34,F,Austin,2022-01-10
C2,28,M,Denver,2022-03-02
C3,45,F,Boston,2021-07-19
C4,60,M,Miami,2020-11-30
`

const transactionsCSV = `transaction_id,customer_id,product_id,quantity,unit_price,total_amount,transaction_date
T01,C1,P1,1,100,100,2024-12-01
T02,C1,P2,2,100,200,2024-12-15
T03,C1,P3,1,50,50,2024-12-30
T04,C1,P3,1,-20,-20,2024-12-31
T05,C2,P1,1,80,80,2024-11-01
T06,C2,P4,1,40,40,2024-12-20
T07,C3,P9,1,500,500,2024-06-01
T08,C4,P1,1,10,10,2023-03-01
T09,C4,P1,1,10,10,2022-05-05
`

// fixture writes the CSV inputs and returns a config reading them.
func fixture(t *testing.T, extra string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	customers := filepath.Join(dir, "customers_data.csv")
	transactions := filepath.Join(dir, "transactions_data.csv")
	require.NoError(t, os.WriteFile(customers, []byte(customersCSV), 0o600))
	require.NoError(t, os.WriteFile(transactions, []byte(transactionsCSV), 0o600))

	out := filepath.Join(dir, "reports")
	yml := fmt.Sprintf(`
analysis:
  window_start: 2023-01-01
  window_end: 2024-12-31
  timeout: 10s
source:
  type: csv
  customers_path: %q
  transactions_path: %q
output:
  dir: %q
  metrics_file: %q
%s`, customers, transactions, out, filepath.Join(out, "rfm.prom"), extra)

	cfg, err := config.Parse([]byte(yml))
	require.NoError(t, err)
	return cfg, out
}

func TestRun_EndToEnd(t *testing.T) {
	cfg, out := fixture(t, "")

	rep, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)

	res := rep.Result
	assert.Equal(t, "2024-12-31", res.Summary.ReferenceDate.Format(time.DateOnly))

	var ids, codes, segments []string
	for _, r := range res.Records {
		ids = append(ids, r.CustomerID)
		codes = append(codes, r.RFMCode)
		segments = append(segments, r.Segment)
	}
	assert.Equal(t, []string{"C3", "C1", "C2", "C4"}, ids)
	assert.Equal(t, []string{"214", "443", "332", "121"}, codes)
	assert.Equal(t, []string{"At Risk", "Loyal Customers", "Loyal Customers", "At Risk"}, segments)

	c1 := res.Records[1]
	assert.Equal(t, 1, c1.RecencyDays)
	assert.Equal(t, 3, c1.Frequency)
	assert.Equal(t, "350", c1.MonetaryValue.String())

	require.Len(t, res.Profiles, 2)
	assert.Equal(t, 2, res.Profiles[0].Customers)

	for _, name := range []string{
		"customer_segments.csv", "segment_profiles.csv",
		"customer_segments.json", "segment_profiles.json", "rfm.prom",
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.Len(t, rep.Files, 5)
}

func TestRun_ReferenceDateOverride(t *testing.T) {
	cfg, _ := fixture(t, "")
	ref := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	rep, err := Run(context.Background(), cfg, Options{ReferenceDate: ref})
	require.NoError(t, err)
	for _, r := range rep.Result.Records {
		if r.CustomerID == "C1" {
			assert.Equal(t, 32, r.RecencyDays)
		}
	}
}

func TestRun_WebhookFailureDoesNotFailRun(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	t.Setenv("RFM_RUNNER_TEST_WEBHOOK", srv.URL)

	cfg, _ := fixture(t, `  webhook:
    type: slack
    url_env: RFM_RUNNER_TEST_WEBHOOK
`)
	_, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRun_EmptyWindow(t *testing.T) {
	cfg, _ := fixture(t, "")
	cfg.Analysis.WindowStart = config.MustDate("2019-01-01")
	cfg.Analysis.WindowEnd = config.MustDate("2019-12-31")

	_, err := Run(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, compute.ErrEmptyResult)
}

func TestRun_InvalidInput(t *testing.T) {
	cfg, _ := fixture(t, "")
	f, err := os.OpenFile(cfg.Source.TransactionsPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("T10,C99,P1,1,5,5,2024-01-01\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Run(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, compute.ErrInvalidInput)
}

func TestRun_Cancelled(t *testing.T) {
	cfg, _ := fixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, cfg, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
