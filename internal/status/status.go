// Package status reports the health of the gateway's public routes.
//
// A Checker probes the chat, image and reset routes of a running gateway
// concurrently and folds the results into a Report with per-service state,
// synthesized incidents and process metrics. A failed probe only marks its
// own service down; Check itself never fails.
package status

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Service states
const (
	StateOperational = "operational"
	StateDegraded    = "degraded"
	StateDown        = "down"
)

// Incident states
const (
	IncidentInvestigating = "investigating"
	IncidentMonitoring    = "monitoring"
	IncidentResolved      = "resolved"
)

// Probed paths
const (
	PathChat  = "/api/chat"
	PathImage = "/api/image"
	PathReset = "/api/reset"
)

// SessionHeader carries the session a probe runs under. Every Check uses a
// fresh session with ProbeSessionPrefix so probes never touch the history
// or rate budget of a real session.
const (
	SessionHeader      = "X-Session-Id"
	ProbeSessionPrefix = "status-"
)

// DefaultProbeTimeout bounds each probe.
const DefaultProbeTimeout = 10 * time.Second

// Service is the reported state of one service.
type Service struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	ResponseTime string `json:"responseTime"`
	LastChecked  string `json:"lastChecked"`

	// responseMillis feeds the average; -1 when the service has no timing.
	responseMillis int64
}

// Incident is a synthesized or historical incident entry.
type Incident struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// Metrics summarizes the checked services and the serving process.
type Metrics struct {
	OverallUptime   string `json:"overallUptime"`
	AvgResponseTime string `json:"avgResponseTime"`
	ActiveUsers     string `json:"activeUsers"`
	APIRequests     string `json:"apiRequests"`
	SystemUptime    string `json:"systemUptime"`
	MemoryUsage     string `json:"memoryUsage"`
}

// Report is the full status document.
type Report struct {
	AllOperational bool       `json:"allOperational"`
	DegradedCount  int        `json:"degradedCount"`
	DownCount      int        `json:"downCount"`
	Services       []Service  `json:"services"`
	Incidents      []Incident `json:"incidents"`
	Metrics        Metrics    `json:"metrics"`
	Timestamp      string     `json:"timestamp"`
	CheckDuration  string     `json:"checkDuration"`
}

// probeResult is the outcome of probing one route.
type probeResult struct {
	state    string
	duration time.Duration
}

// Checker probes a gateway's routes.
type Checker struct {
	baseURL    string
	httpClient *http.Client
	started    time.Time
	now        func() time.Time
	memory     func() (inUse, reserved uint64)
}

// NewChecker creates a checker for the gateway at baseURL. started is the
// process start time used for the uptime metric.
func NewChecker(baseURL string, timeout time.Duration, started time.Time) *Checker {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Checker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		started:    started,
		now:        time.Now,
		memory:     heapMemory,
	}
}

// BaseURL returns the probed gateway address.
func (c *Checker) BaseURL() string {
	return c.baseURL
}

// Check probes every route and builds a Report.
func (c *Checker) Check(ctx context.Context) Report {
	begin := c.now()

	paths := []string{PathChat, PathImage, PathReset}
	results := make([]probeResult, len(paths))
	session := ProbeSessionPrefix + uuid.NewString()

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = c.probe(gctx, path, session)
			return nil
		})
	}
	_ = g.Wait()

	total := c.now().Sub(begin)
	now := c.now().UTC()
	checked := now.Format(time.RFC3339Nano)

	chat, image, reset := results[0], results[1], results[2]

	services := []Service{
		staticService("API Gateway", fmt.Sprintf("%dms", total.Milliseconds()), total.Milliseconds(), checked),
		probedService("Chat API (GPT-4o)", chat, "99.98%", checked),
		probedService("Chat API (GPT-3.5)", chat, "99.99%", checked),
		probedService("Image Generation API", image, "99.95%", checked),
		probedService("Reset API", reset, "99.99%", checked),
		staticService("Web Server", "< 1ms", -1, checked),
	}

	report := Report{
		Services:      services,
		Timestamp:     checked,
		CheckDuration: fmt.Sprintf("%dms", total.Milliseconds()),
	}

	var sum int64
	for _, s := range services {
		switch s.Status {
		case StateDown:
			report.DownCount++
		case StateDegraded:
			report.DegradedCount++
		}
		if s.responseMillis > 0 {
			sum += s.responseMillis
		}
	}
	report.AllOperational = report.DownCount == 0 && report.DegradedCount == 0
	report.Incidents = incidents(now, report.DownCount, report.DegradedCount)

	overall := "100%"
	if !report.AllOperational {
		pct := float64(len(services)-report.DownCount) / float64(len(services)) * 100
		overall = fmt.Sprintf("%.0f%%", pct)
	}

	inUse, reserved := c.memory()
	report.Metrics = Metrics{
		OverallUptime:   overall,
		AvgResponseTime: fmt.Sprintf("%dms", roundDiv(sum, int64(len(services)))),
		ActiveUsers:     "Live",
		APIRequests:     "Real-time",
		SystemUptime:    FormatUptime(now.Sub(c.started)),
		MemoryUsage:     units.BytesSize(float64(inUse)) + " / " + units.BytesSize(float64(reserved)),
	}

	return report
}

// probe sends OPTIONS to path, falling back to POST {} when the route
// rejects OPTIONS with 405. Any status below 500 counts as operational.
func (c *Checker) probe(ctx context.Context, path, session string) probeResult {
	url := c.baseURL + path
	start := c.now()

	status, err := c.send(ctx, http.MethodOptions, url, session, nil)
	if err == nil && status == http.StatusMethodNotAllowed {
		start = c.now()
		status, err = c.send(ctx, http.MethodPost, url, session, []byte("{}"))
	}

	res := probeResult{duration: c.now().Sub(start), state: StateOperational}
	if err != nil || status >= 500 {
		res.state = StateDown
	}
	return res
}

func (c *Checker) send(ctx context.Context, method, url, session string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set(SessionHeader, session)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func staticService(name, responseTime string, millis int64, checked string) Service {
	return Service{
		Name:           name,
		Status:         StateOperational,
		Uptime:         "100%",
		ResponseTime:   responseTime,
		LastChecked:    checked,
		responseMillis: millis,
	}
}

func probedService(name string, res probeResult, uptime, checked string) Service {
	if res.state != StateOperational {
		uptime = "0%"
	}
	ms := res.duration.Milliseconds()
	return Service{
		Name:           name,
		Status:         res.state,
		Uptime:         uptime,
		ResponseTime:   fmt.Sprintf("%dms", ms),
		LastChecked:    checked,
		responseMillis: ms,
	}
}

// incidents synthesizes the incident list for the current counts.
func incidents(now time.Time, down, degraded int) []Incident {
	today := now.Format(time.DateOnly)

	switch {
	case down > 0:
		return []Incident{{
			Date:        today,
			Title:       fmt.Sprintf("%d %s Down", down, plural(down, "Service", "Services")),
			Status:      IncidentInvestigating,
			Duration:    "Ongoing",
			Description: fmt.Sprintf("%d %s currently experiencing issues. Our team is investigating.", down, plural(down, "service is", "services are")),
		}}
	case degraded > 0:
		return []Incident{{
			Date:        today,
			Title:       fmt.Sprintf("%d %s Degraded", degraded, plural(degraded, "Service", "Services")),
			Status:      IncidentMonitoring,
			Duration:    "Ongoing",
			Description: fmt.Sprintf("%d %s experiencing slower than normal response times.", degraded, plural(degraded, "service is", "services are")),
		}}
	default:
		return []Incident{{
			Date:        "2024-11-20",
			Title:       "Increased API Response Time",
			Status:      IncidentResolved,
			Duration:    "15 minutes",
			Description: "Temporary spike in response times due to high traffic. Resolved by scaling infrastructure.",
		}}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func roundDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

// FormatUptime renders d as "Nd Nh" when longer than a day, else "Nh Nm".
func FormatUptime(d time.Duration) string {
	if d > 24*time.Hour {
		days := int64(d / (24 * time.Hour))
		hours := int64((d % (24 * time.Hour)) / time.Hour)
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	hours := int64(d / time.Hour)
	minutes := int64((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func heapMemory() (inUse, reserved uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse, m.HeapSys
}
