package tamper

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/floodwatch/internal/adapters/repository"
)

// AgentStatus classifies an agent by the share of suspicious recent readings.
type AgentStatus string

const (
	AgentNormal   AgentStatus = "normal"
	AgentMedium   AgentStatus = "medium"
	AgentHigh     AgentStatus = "high"
	AgentCritical AgentStatus = "critical"
)

// agentSuspiciousScore is stricter than the per-submission threshold.
const agentSuspiciousScore = 0.7

// AgentReport is the outcome of MonitorAgentBehavior.
type AgentReport struct {
	UserID           int64       `json:"user_id"`
	Status           AgentStatus `json:"status"`
	Message          string      `json:"message,omitempty"`
	TotalSubmissions int         `json:"total_submissions"`
	AvgTamperScore   float64     `json:"avg_tamper_score"`
	SuspiciousCount  int         `json:"suspicious_count"`
	SuspiciousRatio  float64     `json:"suspicious_ratio"`
}

// MonitorAgentBehavior summarizes the agent's stored scores over the trailing window.
func (e *Engine) MonitorAgentBehavior(ctx context.Context, userID int64, window time.Duration) (AgentReport, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	subs, err := e.store.ListSubmissions(ctx, repository.Query{
		UserID: userID,
		Since:  e.now().Add(-window),
	})
	if err != nil {
		return AgentReport{}, fmt.Errorf("listing agent submissions: %w", err)
	}

	rep := AgentReport{UserID: userID, Status: AgentNormal}
	if len(subs) == 0 {
		rep.Message = "No recent activity"
		return rep, nil
	}

	var sum float64
	for _, s := range subs {
		sum += s.TamperScore
		if s.TamperScore > agentSuspiciousScore {
			rep.SuspiciousCount++
		}
	}
	rep.TotalSubmissions = len(subs)
	rep.AvgTamperScore = sum / float64(len(subs))
	rep.SuspiciousRatio = float64(rep.SuspiciousCount) / float64(len(subs))
	rep.Status = classify(rep.SuspiciousRatio, rep.SuspiciousCount)
	return rep, nil
}

func classify(ratio float64, suspicious int) AgentStatus {
	switch {
	case ratio > 0.5:
		return AgentCritical
	case ratio > 0.3:
		return AgentHigh
	case suspicious > 0:
		return AgentMedium
	}
	return AgentNormal
}
