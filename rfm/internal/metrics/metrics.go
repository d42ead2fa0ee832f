package metrics

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
)

// Metric names written to the textfile.
const (
	CustomersScored    = "rfm_customers_scored"
	TransactionsScored = "rfm_transactions_scored"
	RevenueTotal       = "rfm_revenue_total"
	RepeatRatePercent  = "rfm_repeat_rate_percent"
	SegmentCustomers   = "rfm_segment_customers"
	ScoreCustomers     = "rfm_score_customers"
	ClusterCustomers   = "rfm_cluster_customers"
	RunDuration        = "rfm_run_duration_seconds"
	LastSuccess        = "rfm_last_success_timestamp_seconds"
)

// Families builds the metric families describing one successful run.
func Families(res *compute.Result, duration time.Duration, finished time.Time) []*dto.MetricFamily {
	s := res.Summary
	revenue, _ := s.TotalRevenue.Float64()

	segments := gaugeFamily(SegmentCustomers, "Scored customers per segment.")
	for _, p := range res.Profiles {
		segments.Metric = append(segments.Metric, gauge(float64(p.Customers), "segment", p.Segment))
	}

	scores := gaugeFamily(ScoreCustomers, "Scored customers per RFM dimension and score.")
	for _, dim := range []struct {
		name  string
		score func(i int) int
	}{
		{"recency", func(i int) int { return res.Records[i].RecencyScore }},
		{"frequency", func(i int) int { return res.Records[i].FrequencyScore }},
		{"monetary", func(i int) int { return res.Records[i].MonetaryScore }},
	} {
		counts := make(map[int]int)
		for i := range res.Records {
			counts[dim.score(i)]++
		}
		keys := make([]int, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			scores.Metric = append(scores.Metric,
				gauge(float64(counts[k]), "dimension", dim.name, "score", strconv.Itoa(k)))
		}
	}

	clusters := gaugeFamily(ClusterCustomers, "Scored customers per k-means cluster.")
	perCluster := make(map[int]int)
	for i := range res.Records {
		perCluster[res.Records[i].Cluster]++
	}
	ids := make([]int, 0, len(perCluster))
	for id := range perCluster {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		clusters.Metric = append(clusters.Metric,
			gauge(float64(perCluster[id]), "cluster", strconv.Itoa(id)))
	}

	return []*dto.MetricFamily{
		single(CustomersScored, "Customers that received RFM scores.", float64(s.Customers)),
		single(TransactionsScored, "Eligible transactions of scored customers.", float64(s.Transactions)),
		single(RevenueTotal, "Monetary value summed over scored customers.", revenue),
		single(RepeatRatePercent, "Share of scored customers with more than one purchase.", s.RepeatRate),
		segments,
		scores,
		clusters,
		single(RunDuration, "Wall time of the last successful run.", duration.Seconds()),
		single(LastSuccess, "Unix time the last successful run finished.", float64(finished.Unix())),
	}
}

// WriteTextfile writes families to path in the text exposition format.
// The file is replaced atomically so a collector never reads half a run.
func WriteTextfile(path string, families []*dto.MetricFamily) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("metrics: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("metrics: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			tmp.Close()
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: rename %s: %w", path, err)
	}
	return nil
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func single(name, help string, v float64) *dto.MetricFamily {
	mf := gaugeFamily(name, help)
	mf.Metric = []*dto.Metric{gauge(v)}
	return mf
}

// gauge builds a gauge sample; labels are name/value pairs.
func gauge(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}
