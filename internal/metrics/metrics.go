// Package metrics provides observability for the relayer's submission,
// crank, and webhook subsystems: a recorder interface, Prometheus text
// export, and OK/Degraded/Down health classification.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Recorder is the interface every subsystem records through.
//
// Contract:
//   - every Record* method MUST be safe for concurrent use
//   - GetHealthStatus MUST report Degraded once submission success rate
//     drops below 90% or no submission has succeeded in 5 minutes
//   - Export MUST return Prometheus text-format output
type Recorder interface {
	RecordSubmission(duration time.Duration, success bool)
	RecordRetry()
	RecordWebhookEvent(provider string, recognized bool)
	RecordCrankCycle(claimed int, confirmed int, failed int, resurrected int)
	RecordRiskCheck(duration time.Duration, tier string)

	GetMetrics() *Aggregated
	GetHealthStatus() HealthStatus
	Export() string
	Reset()
}

// Aggregated holds the counters this relayer's operations actually
// produce.
type Aggregated struct {
	TotalSubmissions      int64
	SuccessfulSubmissions int64
	FailedSubmissions     int64
	SubmissionSuccessRate float64
	AvgSubmissionDuration time.Duration
	LastSuccessfulSubmit  time.Time

	TotalRetries int64

	WebhookEventsRecognized int64
	WebhookEventsUnknown    int64

	CrankCyclesRun        int64
	CrankRowsClaimed      int64
	CrankRowsConfirmed    int64
	CrankRowsFailed       int64
	CrankRowsResurrected  int64

	TotalRiskChecks int64
	AvgRiskDuration time.Duration
}

// HealthStatus is an OK/Degraded/Down classification.
type HealthStatus struct {
	Status    string
	Message   string
	CheckedAt time.Time

	LowSuccessRate  bool
	NoRecentSuccess bool
}

func (h HealthStatus) IsHealthy() bool  { return h.Status == "OK" }
func (h HealthStatus) IsDegraded() bool { return h.Status == "Degraded" }

// PrometheusRecorder is the concrete, mutex-guarded Recorder implementation.
type PrometheusRecorder struct {
	mu sync.RWMutex

	totalSubmissions      int64
	successfulSubmissions int64
	failedSubmissions     int64
	totalSubmissionTime   time.Duration
	lastSuccessfulSubmit  time.Time

	totalRetries int64

	webhookRecognized int64
	webhookUnknown    int64

	crankCycles       int64
	crankClaimed      int64
	crankConfirmed    int64
	crankFailed       int64
	crankResurrected  int64

	totalRiskChecks int64
	totalRiskTime   time.Duration
	riskTiers       map[string]int64
}

// NewPrometheusRecorder creates a zero-valued recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{riskTiers: make(map[string]int64)}
}

func (p *PrometheusRecorder) RecordSubmission(duration time.Duration, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalSubmissions++
	p.totalSubmissionTime += duration
	if success {
		p.successfulSubmissions++
		p.lastSuccessfulSubmit = time.Now()
	} else {
		p.failedSubmissions++
	}
}

func (p *PrometheusRecorder) RecordRetry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalRetries++
}

func (p *PrometheusRecorder) RecordWebhookEvent(provider string, recognized bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if recognized {
		p.webhookRecognized++
	} else {
		p.webhookUnknown++
	}
}

func (p *PrometheusRecorder) RecordCrankCycle(claimed, confirmed, failed, resurrected int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.crankCycles++
	p.crankClaimed += int64(claimed)
	p.crankConfirmed += int64(confirmed)
	p.crankFailed += int64(failed)
	p.crankResurrected += int64(resurrected)
}

func (p *PrometheusRecorder) RecordRiskCheck(duration time.Duration, tier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalRiskChecks++
	p.totalRiskTime += duration
	p.riskTiers[tier]++
}

func (p *PrometheusRecorder) GetMetrics() *Aggregated {
	p.mu.RLock()
	defer p.mu.RUnlock()

	successRate := 0.0
	if p.totalSubmissions > 0 {
		successRate = float64(p.successfulSubmissions) / float64(p.totalSubmissions)
	}
	avgDuration := time.Duration(0)
	if p.totalSubmissions > 0 {
		avgDuration = p.totalSubmissionTime / time.Duration(p.totalSubmissions)
	}
	avgRisk := time.Duration(0)
	if p.totalRiskChecks > 0 {
		avgRisk = p.totalRiskTime / time.Duration(p.totalRiskChecks)
	}

	return &Aggregated{
		TotalSubmissions:        p.totalSubmissions,
		SuccessfulSubmissions:   p.successfulSubmissions,
		FailedSubmissions:       p.failedSubmissions,
		SubmissionSuccessRate:   successRate,
		AvgSubmissionDuration:   avgDuration,
		LastSuccessfulSubmit:    p.lastSuccessfulSubmit,
		TotalRetries:            p.totalRetries,
		WebhookEventsRecognized: p.webhookRecognized,
		WebhookEventsUnknown:    p.webhookUnknown,
		CrankCyclesRun:          p.crankCycles,
		CrankRowsClaimed:        p.crankClaimed,
		CrankRowsConfirmed:      p.crankConfirmed,
		CrankRowsFailed:         p.crankFailed,
		CrankRowsResurrected:    p.crankResurrected,
		TotalRiskChecks:         p.totalRiskChecks,
		AvgRiskDuration:         avgRisk,
	}
}

// GetHealthStatus reports Degraded once submission success rate drops below
// 90% or no submission has succeeded in 5 minutes.
func (p *PrometheusRecorder) GetHealthStatus() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := HealthStatus{CheckedAt: time.Now()}
	if p.totalSubmissions == 0 {
		status.Status = "OK"
		status.Message = "no submissions recorded yet"
		return status
	}

	successRate := float64(p.successfulSubmissions) / float64(p.totalSubmissions)
	status.LowSuccessRate = successRate < 0.90
	status.NoRecentSuccess = !p.lastSuccessfulSubmit.IsZero() &&
		time.Since(p.lastSuccessfulSubmit) > 5*time.Minute

	if status.LowSuccessRate || status.NoRecentSuccess {
		status.Status = "Degraded"
		var reasons []string
		if status.LowSuccessRate {
			reasons = append(reasons, fmt.Sprintf("low submission success rate (%.1f%%)", successRate*100))
		}
		if status.NoRecentSuccess {
			reasons = append(reasons, fmt.Sprintf("no successful submission in %v", time.Since(p.lastSuccessfulSubmit)))
		}
		status.Message = strings.Join(reasons, ", ")
		return status
	}

	status.Status = "OK"
	status.Message = fmt.Sprintf("submission success rate %.1f%%", successRate*100)
	return status
}

func (p *PrometheusRecorder) Export() string {
	m := p.GetMetrics()
	health := p.GetHealthStatus()

	var sb strings.Builder
	sb.WriteString("# HELP relayer_submissions_total Total submission attempts\n")
	sb.WriteString("# TYPE relayer_submissions_total counter\n")
	sb.WriteString(fmt.Sprintf("relayer_submissions_total{status=\"success\"} %d\n", m.SuccessfulSubmissions))
	sb.WriteString(fmt.Sprintf("relayer_submissions_total{status=\"failure\"} %d\n\n", m.FailedSubmissions))

	sb.WriteString("# HELP relayer_submission_duration_seconds Average submission duration\n")
	sb.WriteString("# TYPE relayer_submission_duration_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("relayer_submission_duration_seconds %.6f\n\n", m.AvgSubmissionDuration.Seconds()))

	sb.WriteString("# HELP relayer_retries_total Total retry attempts\n")
	sb.WriteString("# TYPE relayer_retries_total counter\n")
	sb.WriteString(fmt.Sprintf("relayer_retries_total %d\n\n", m.TotalRetries))

	sb.WriteString("# HELP relayer_webhook_events_total Webhook events received\n")
	sb.WriteString("# TYPE relayer_webhook_events_total counter\n")
	sb.WriteString(fmt.Sprintf("relayer_webhook_events_total{recognized=\"true\"} %d\n", m.WebhookEventsRecognized))
	sb.WriteString(fmt.Sprintf("relayer_webhook_events_total{recognized=\"false\"} %d\n\n", m.WebhookEventsUnknown))

	sb.WriteString("# HELP relayer_crank_cycles_total Stale-transaction crank cycles run\n")
	sb.WriteString("# TYPE relayer_crank_cycles_total counter\n")
	sb.WriteString(fmt.Sprintf("relayer_crank_cycles_total %d\n", m.CrankCyclesRun))
	sb.WriteString(fmt.Sprintf("relayer_crank_rows_claimed_total %d\n", m.CrankRowsClaimed))
	sb.WriteString(fmt.Sprintf("relayer_crank_rows_confirmed_total %d\n", m.CrankRowsConfirmed))
	sb.WriteString(fmt.Sprintf("relayer_crank_rows_failed_total %d\n", m.CrankRowsFailed))
	sb.WriteString(fmt.Sprintf("relayer_crank_rows_resurrected_total %d\n\n", m.CrankRowsResurrected))

	healthValue := 0.0
	switch health.Status {
	case "OK":
		healthValue = 1.0
	case "Degraded":
		healthValue = 0.5
	}
	sb.WriteString("# HELP relayer_health_status Health status (1=OK, 0.5=Degraded, 0=Down)\n")
	sb.WriteString("# TYPE relayer_health_status gauge\n")
	sb.WriteString(fmt.Sprintf("relayer_health_status %.1f\n", healthValue))

	return sb.String()
}

func (p *PrometheusRecorder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalSubmissions, p.successfulSubmissions, p.failedSubmissions = 0, 0, 0
	p.totalSubmissionTime, p.lastSuccessfulSubmit = 0, time.Time{}
	p.totalRetries, p.webhookRecognized, p.webhookUnknown = 0, 0, 0
	p.crankCycles, p.crankClaimed, p.crankConfirmed, p.crankFailed, p.crankResurrected = 0, 0, 0, 0, 0
	p.totalRiskChecks, p.totalRiskTime = 0, 0
	p.riskTiers = make(map[string]int64)
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NoOp is a Recorder that discards everything, for tests that don't care
// about metrics.
type NoOp struct{}

func (NoOp) RecordSubmission(time.Duration, bool)         {}
func (NoOp) RecordRetry()                                 {}
func (NoOp) RecordWebhookEvent(string, bool)               {}
func (NoOp) RecordCrankCycle(int, int, int, int)           {}
func (NoOp) RecordRiskCheck(time.Duration, string)         {}
func (NoOp) GetMetrics() *Aggregated                       { return &Aggregated{} }
func (NoOp) GetHealthStatus() HealthStatus {
	return HealthStatus{Status: "OK", Message: "metrics disabled", CheckedAt: time.Now()}
}
func (NoOp) Export() string { return "" }
func (NoOp) Reset()         {}

var _ Recorder = NoOp{}
