package experiment

import (
	"fmt"
	"strconv"
	"time"
)

// Iteration is the outcome of one experiment iteration.
type Iteration struct {
	Index    int           `json:"iteration"`
	DocID    string        `json:"doc_id,omitempty"`
	Question string        `json:"question,omitempty"`
	Passed   bool          `json:"passed"`
	Sources  []string      `json:"sources,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Summary aggregates an experiment run.
type Summary struct {
	Model            string        `json:"model"`
	Seed             int64         `json:"seed"`
	TotalExperiments int           `json:"total_experiments"`
	Successes        int           `json:"successes"`
	Failures         int           `json:"failures"`
	SuccessRate      float64       `json:"success_rate"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AverageIteration time.Duration `json:"average_iteration_ns"`
	Iterations       []Iteration   `json:"iterations"`
}

// Headers are the summary table headers.
var Headers = []string{"Metric", "Value"}

// Rows returns the summary table rows in display order.
func (s *Summary) Rows() [][]string {
	return [][]string{
		{"Total Experiments", strconv.Itoa(s.TotalExperiments)},
		{"Successes", strconv.Itoa(s.Successes)},
		{"Failures", strconv.Itoa(s.Failures)},
		{"Success Rate (%)", fmt.Sprintf("%.2f", s.SuccessRate)},
		{"Total Duration (s)", fmt.Sprintf("%.4f", s.TotalDuration.Seconds())},
		{"Average Iteration Time (s)", fmt.Sprintf("%.4f", s.AverageIteration.Seconds())},
	}
}
