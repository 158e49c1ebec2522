package query

// DataPoint is the aggregate of one bucket.
type DataPoint struct {
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"` // bucket start, Unix milliseconds
	Label     string  `json:"label"`
}

// DataSeries is one aggregated series, one point per bucket.
type DataSeries struct {
	Name   string      `json:"name"`
	Points []DataPoint `json:"points"`
}

// DataCollection is the result of a query.
type DataCollection struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Series      []DataSeries `json:"series"`
	GroupNames  []string     `json:"group_names,omitempty"`
	GroupValues []int64      `json:"group_values,omitempty"` // Unix milliseconds
}
