package export

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

// recordRow is the serialized form of one customer_segments row.
// Money stays decimal so JSON carries it as an exact string.
type recordRow struct {
	CustomerID     string          `json:"customer_id"`
	Age            int             `json:"customer_age"`
	Gender         string          `json:"gender"`
	Location       string          `json:"location"`
	JoinDate       string          `json:"join_date,omitempty"`
	RecencyDays    int             `json:"recency_days"`
	Frequency      int             `json:"frequency"`
	MonetaryValue  decimal.Decimal `json:"monetary_value"`
	AvgOrderValue  decimal.Decimal `json:"avg_order_value"`
	FirstPurchase  string          `json:"first_purchase"`
	LastPurchase   string          `json:"last_purchase"`
	RecencyScore   int             `json:"recency_score"`
	FrequencyScore int             `json:"frequency_score"`
	MonetaryScore  int             `json:"monetary_score"`
	RFMCode        string          `json:"rfm_code"`
	Segment        string          `json:"segment"`
	Cluster        int             `json:"cluster"`
}

var recordHeader = []string{
	"customer_id", "customer_age", "gender", "location", "join_date",
	"recency_days", "frequency", "monetary_value", "avg_order_value",
	"first_purchase", "last_purchase",
	"recency_score", "frequency_score", "monetary_score", "rfm_code", "segment", "cluster",
}

func toRecordRow(r types.Record) recordRow {
	return recordRow{
		CustomerID:     r.CustomerID,
		Age:            r.Age,
		Gender:         r.Gender,
		Location:       r.Location,
		JoinDate:       formatDate(r.JoinDate),
		RecencyDays:    r.RecencyDays,
		Frequency:      r.Frequency,
		MonetaryValue:  r.MonetaryValue,
		AvgOrderValue:  r.AvgOrderValue.Round(2),
		FirstPurchase:  formatDate(r.FirstPurchase),
		LastPurchase:   formatDate(r.LastPurchase),
		RecencyScore:   r.RecencyScore,
		FrequencyScore: r.FrequencyScore,
		MonetaryScore:  r.MonetaryScore,
		RFMCode:        r.RFMCode,
		Segment:        r.Segment,
		Cluster:        r.Cluster,
	}
}

func (r recordRow) fields() []string {
	return []string{
		r.CustomerID, strconv.Itoa(r.Age), r.Gender, r.Location, r.JoinDate,
		strconv.Itoa(r.RecencyDays), strconv.Itoa(r.Frequency),
		r.MonetaryValue.String(), r.AvgOrderValue.StringFixed(2),
		r.FirstPurchase, r.LastPurchase,
		strconv.Itoa(r.RecencyScore), strconv.Itoa(r.FrequencyScore), strconv.Itoa(r.MonetaryScore),
		r.RFMCode, r.Segment, strconv.Itoa(r.Cluster),
	}
}

// profileRow is the serialized form of one segment_profiles row.
type profileRow struct {
	Segment      string          `json:"segment"`
	Customers    int             `json:"customers"`
	Percentage   float64         `json:"percentage"`
	AvgRecency   float64         `json:"avg_recency"`
	AvgFrequency float64         `json:"avg_frequency"`
	AvgMonetary  decimal.Decimal `json:"avg_monetary"`
	AvgAge       float64         `json:"avg_age"`
}

var profileHeader = []string{
	"segment", "customers", "percentage", "avg_recency", "avg_frequency", "avg_monetary", "avg_age",
}

func toProfileRow(p types.SegmentProfile) profileRow {
	return profileRow{
		Segment:      p.Segment,
		Customers:    p.Customers,
		Percentage:   round2(p.Percentage),
		AvgRecency:   round2(p.AvgRecency),
		AvgFrequency: round2(p.AvgFrequency),
		AvgMonetary:  p.AvgMonetary,
		AvgAge:       round2(p.AvgAge),
	}
}

func (p profileRow) fields() []string {
	return []string{
		p.Segment, strconv.Itoa(p.Customers),
		formatFloat(p.Percentage), formatFloat(p.AvgRecency), formatFloat(p.AvgFrequency),
		p.AvgMonetary.StringFixed(2), formatFloat(p.AvgAge),
	}
}

// summaryRow is the JSON form of the business summary.
type summaryRow struct {
	ReferenceDate   string          `json:"reference_date"`
	Customers       int             `json:"customers"`
	Transactions    int             `json:"transactions"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	AvgOrderValue   decimal.Decimal `json:"avg_order_value"`
	RepeatCustomers int             `json:"repeat_customers"`
	RepeatRate      float64         `json:"repeat_rate"`
}

func toSummaryRow(s types.Summary) summaryRow {
	return summaryRow{
		ReferenceDate:   formatDate(s.ReferenceDate),
		Customers:       s.Customers,
		Transactions:    s.Transactions,
		TotalRevenue:    s.TotalRevenue,
		AvgOrderValue:   s.AvgOrderValue,
		RepeatCustomers: s.RepeatCustomers,
		RepeatRate:      round2(s.RepeatRate),
	}
}

// correlationRow is the JSON form of the RFM correlation matrix, rounded to
// three places.
type correlationRow struct {
	Fields []string    `json:"fields"`
	Values [][]float64 `json:"values"`
}

func toCorrelationRow(m types.CorrelationMatrix) correlationRow {
	out := correlationRow{Fields: m.Fields, Values: make([][]float64, len(m.Values))}
	for i, row := range m.Values {
		out.Values[i] = make([]float64, len(row))
		for j, v := range row {
			f, _ := decimal.NewFromFloat(v).Round(3).Float64()
			out.Values[i][j] = f
		}
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
