package services

import (
	"fmt"
	"strings"
	"time"

	"solrelay/internal/clients"
	"solrelay/internal/metrics"
	"solrelay/internal/models"
	"solrelay/internal/repository"
)

// rejectLabels are risk-level/reasoning substrings that force a rejection
// regardless of numeric score.
var rejectLabels = []string{"critical", "high", "severe", "extremely"}

// ComplianceGate screens a single address for sanctions/risk exposure.
type ComplianceGate struct {
	blocklist     *BlocklistCache
	riskClient    *clients.RiskClient
	riskRepo      repository.RiskProfileRepository
	riskThreshold int
}

func NewComplianceGate(blocklist *BlocklistCache, riskClient *clients.RiskClient, riskRepo repository.RiskProfileRepository, riskThreshold int) *ComplianceGate {
	return &ComplianceGate{
		blocklist:     blocklist,
		riskClient:    riskClient,
		riskRepo:      riskRepo,
		riskThreshold: riskThreshold,
	}
}

// ScreenResult is the outcome of screening a single address.
type ScreenResult struct {
	Approved bool
	Reason   string
}

// Screen runs the compliance pipeline for a single address: blocklist
// check first, then the risk provider (cached, with TTL), scored against
// the configured threshold. Any provider error fails closed: the address
// is rejected with an error-class reason rather than waved through. Any
// rejection auto-adds the address to the blocklist.
func (g *ComplianceGate) Screen(address string) (ScreenResult, error) {
	if g.blocklist.Contains(address) {
		metrics.ComplianceDecisions.WithLabelValues("rejected_blocklist").Inc()
		return ScreenResult{Approved: false, Reason: "address is on the blocklist"}, nil
	}

	risk, err := g.riskFor(address)
	if err != nil {
		reason := fmt.Sprintf("risk provider error: %v", err)
		if addErr := g.blocklist.Add(address, reason); addErr != nil {
			return ScreenResult{}, fmt.Errorf("add to blocklist after provider error: %w", addErr)
		}
		metrics.ComplianceDecisions.WithLabelValues("rejected_provider_error").Inc()
		return ScreenResult{Approved: false, Reason: reason}, nil
	}

	if rejected, reason := evaluateRisk(risk, g.riskThreshold); rejected {
		if err := g.blocklist.Add(address, reason); err != nil {
			return ScreenResult{}, fmt.Errorf("add to blocklist after risk rejection: %w", err)
		}
		metrics.ComplianceDecisions.WithLabelValues("rejected_risk").Inc()
		return ScreenResult{Approved: false, Reason: reason}, nil
	}

	metrics.ComplianceDecisions.WithLabelValues("approved").Inc()
	return ScreenResult{Approved: true}, nil
}

func evaluateRisk(risk *clients.RiskResponse, threshold int) (rejected bool, reason string) {
	if risk.RiskScore >= threshold {
		return true, fmt.Sprintf("risk score %d meets or exceeds threshold %d (%s)", risk.RiskScore, threshold, risk.RiskLevel)
	}
	lowerLevel := strings.ToLower(risk.RiskLevel)
	lowerReasoning := strings.ToLower(risk.Reasoning)
	for _, label := range rejectLabels {
		if strings.Contains(lowerLevel, label) || strings.Contains(lowerReasoning, label) {
			return true, fmt.Sprintf("risk label %q forces rejection", label)
		}
	}
	return false, ""
}

func (g *ComplianceGate) riskFor(address string) (*clients.RiskResponse, error) {
	cached, err := g.riskRepo.Get(address)
	if err != nil {
		return nil, fmt.Errorf("read cached risk profile: %w", err)
	}
	if cached != nil {
		return &clients.RiskResponse{RiskScore: cached.RiskScore, RiskLevel: cached.RiskLevel, Reasoning: cached.Reasoning}, nil
	}

	risk, err := g.riskClient.Query(address)
	if err != nil {
		return nil, err
	}

	profile := &models.RiskProfile{
		Address:   address,
		RiskScore: risk.RiskScore,
		RiskLevel: risk.RiskLevel,
		Reasoning: risk.Reasoning,
		FetchedAt: time.Now(),
	}
	if err := g.riskRepo.Upsert(profile); err != nil {
		return nil, fmt.Errorf("cache risk profile: %w", err)
	}
	return risk, nil
}

// ScreenBoth screens both the sender and recipient; a rejection of either
// rejects the whole transfer. The first rejection encountered is returned
// so RejectCompliance can persist a single reason.
func (g *ComplianceGate) ScreenBoth(fromAddress, toAddress string) (ScreenResult, error) {
	fromResult, err := g.Screen(fromAddress)
	if err != nil {
		return ScreenResult{}, fmt.Errorf("screen sender: %w", err)
	}
	if !fromResult.Approved {
		return fromResult, nil
	}

	toResult, err := g.Screen(toAddress)
	if err != nil {
		return ScreenResult{}, fmt.Errorf("screen recipient: %w", err)
	}
	if !toResult.Approved {
		return toResult, nil
	}

	return ScreenResult{Approved: true}, nil
}
