package services

import (
	"strings"

	"github.com/huangang/reviewbuddy/backend/internal/models"
)

// DecisionResult is the policy's verdict for one assessment.
type DecisionResult struct {
	Decision        models.Decision `json:"decision"`
	ConfidenceScore int             `json:"confidenceScore"`
	Rationale       string          `json:"rationale"`
}

// Decide applies the routing rules in order; the first match wins.
//
// Both AUTO (85) and SEMI_AUTO (90) can auto-handle an all-Low review; the
// differing confidence is part of the contract.
func Decide(a models.RiskAssessment, level models.AutomationLevel) DecisionResult {
	var highs []string
	if a.ContentRisk == models.RiskHigh {
		highs = append(highs, "high content risk")
	}
	if a.ReputationalRisk == models.RiskHigh {
		highs = append(highs, "high reputational risk")
	}
	if a.ContextualRisk == models.RiskHigh {
		highs = append(highs, "high contextual risk")
	}
	if a.LegalRiskDetected {
		highs = append(highs, "legal risk detected")
	}
	if len(highs) > 0 {
		return DecisionResult{
			Decision:        models.DecisionEscalate,
			ConfidenceScore: 95,
			Rationale:       "Escalation required due to: " + strings.Join(highs, ", "),
		}
	}

	if a.PIIDetected {
		return DecisionResult{
			Decision:        models.DecisionHoldForApproval,
			ConfidenceScore: 90,
			Rationale:       "PII detected - human review required before responding",
		}
	}

	if a.AllLow() && level == models.AutomationAuto {
		return DecisionResult{
			Decision:        models.DecisionAutoHandle,
			ConfidenceScore: 85,
			Rationale:       "All risk levels are low and automation is enabled",
		}
	}

	var mediums []string
	if a.ContentRisk == models.RiskMedium {
		mediums = append(mediums, "content")
	}
	if a.ReputationalRisk == models.RiskMedium {
		mediums = append(mediums, "reputational")
	}
	if a.ContextualRisk == models.RiskMedium {
		mediums = append(mediums, "contextual")
	}
	if len(mediums) > 0 {
		return DecisionResult{
			Decision:        models.DecisionHoldForApproval,
			ConfidenceScore: 75,
			Rationale:       "Medium risk detected in: " + strings.Join(mediums, ", ") + " - human approval recommended",
		}
	}

	switch level {
	case models.AutomationManual:
		return DecisionResult{
			Decision:        models.DecisionHoldForApproval,
			ConfidenceScore: 90,
			Rationale:       "Manual mode enabled - all reviews require human approval",
		}
	case models.AutomationSemiAuto:
		if a.AllLow() && a.Sentiment == models.SentimentPositive {
			return DecisionResult{
				Decision:        models.DecisionAutoHandle,
				ConfidenceScore: 90,
				Rationale:       "Semi-automatic mode - perfect positive review handled automatically",
			}
		}
		return DecisionResult{
			Decision:        models.DecisionHoldForApproval,
			ConfidenceScore: 85,
			Rationale:       "Semi-automatic mode - review queued for quick check",
		}
	case models.AutomationAuto:
		// AUTO with no Medium and not all Low: a level outside Low/Medium/High.
	}

	return DecisionResult{
		Decision:        models.DecisionHoldForApproval,
		ConfidenceScore: 80,
		Rationale:       "",
	}
}
