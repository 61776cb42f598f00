package query

import "mercator-hq/apilog/pkg/audit"

// Stats is an aggregate view over a set of records.
type Stats struct {
	TotalRequests      int `json:"totalRequests"`
	SuccessfulRequests int `json:"successfulRequests"`
	ErrorRequests      int `json:"errorRequests"`

	// AverageResponseTime is the mean execution time in milliseconds over the
	// records that carry one. It is nil when none do.
	AverageResponseTime *float64 `json:"averageResponseTime"`

	UniqueUsers     int            `json:"uniqueUsers"`
	UniqueEndpoints int            `json:"uniqueEndpoints"`
	Methods         map[string]int `json:"methods"`
	StatusCodes     map[int]int    `json:"statusCodes"`
}

// ComputeStats aggregates records.
func ComputeStats(records []*audit.Record) *Stats {
	stats := &Stats{
		TotalRequests: len(records),
		Methods:       make(map[string]int),
		StatusCodes:   make(map[int]int),
	}

	users := make(map[string]struct{})
	endpoints := make(map[string]struct{})
	var timed int
	var totalMillis int64

	for _, r := range records {
		if r.IsError() {
			stats.ErrorRequests++
		} else {
			stats.SuccessfulRequests++
		}
		if r.ExecutionTimeMillis != nil {
			timed++
			totalMillis += *r.ExecutionTimeMillis
		}
		if r.UserID != nil {
			users[*r.UserID] = struct{}{}
		}
		endpoints[r.Endpoint] = struct{}{}
		stats.Methods[r.Method]++
		stats.StatusCodes[r.ResponseStatus]++
	}

	if timed > 0 {
		avg := float64(totalMillis) / float64(timed)
		stats.AverageResponseTime = &avg
	}
	stats.UniqueUsers = len(users)
	stats.UniqueEndpoints = len(endpoints)
	return stats
}
