package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"quicktask/domain"
)

// Productivity grouping granularity.
const (
	GroupByDay  = "day"
	GroupByWeek = "week"
)

// UserStats is the per-owner summary computed by the analytics service.
type UserStats struct {
	UserID               string                  `json:"userId"`
	TotalTasks           int                     `json:"totalTasks"`
	CompletedTasks       int                     `json:"completedTasks"`
	CompletionPercentage float64                 `json:"completionPercentage"`
	PriorityDistribution map[domain.Priority]int `json:"priorityDistribution"`
	StatusDistribution   map[domain.Status]int   `json:"statusDistribution"`
}

// TrendPoint is one bucket of a productivity analysis.
type TrendPoint struct {
	Date           string `json:"date"`
	TotalTasks     int    `json:"totalTasks"`
	CompletedTasks int    `json:"completedTasks"`
	CreatedTasks   int    `json:"createdTasks"`
}

// ProductivityAnalysis holds completion trends bucketed by day or week.
type ProductivityAnalysis struct {
	UserID          string       `json:"userId"`
	GroupBy         string       `json:"groupBy"`
	Trends          []TrendPoint `json:"trends"`
	TotalDataPoints int          `json:"totalDataPoints"`
	Message         string       `json:"message,omitempty"`
}

// Analytics reads summaries from the analytics service. The service is
// unauthenticated.
type Analytics struct {
	baseURL string
	http    *http.Client
}

// NewAnalytics creates an analytics client rooted at baseURL.
func NewAnalytics(baseURL string, timeout time.Duration) *Analytics {
	return &Analytics{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// UserStats returns totals and distributions for ownerID.
func (a *Analytics) UserStats(ctx context.Context, ownerID string) (UserStats, error) {
	var s UserStats
	err := doJSON(ctx, a.http, http.MethodGet, a.baseURL+"/user-stats/"+url.PathEscape(ownerID), nil, "", nil, nil, &s)
	return s, err
}

// ProductivityAnalysis returns completion trends for ownerID. An empty groupBy
// means daily buckets.
func (a *Analytics) ProductivityAnalysis(ctx context.Context, ownerID, groupBy string) (ProductivityAnalysis, error) {
	if groupBy == "" {
		groupBy = GroupByDay
	}
	var p ProductivityAnalysis
	q := url.Values{"groupBy": {groupBy}}
	err := doJSON(ctx, a.http, http.MethodGet, a.baseURL+"/productivity-analysis/"+url.PathEscape(ownerID), q, "", nil, nil, &p)
	return p, err
}
