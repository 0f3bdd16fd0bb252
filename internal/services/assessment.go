package services

import (
	"encoding/json"
	"strings"

	"github.com/huangang/reviewbuddy/backend/internal/models"
)

// AssessmentOutcome tells a real model assessment apart from the fallback.
type AssessmentOutcome struct {
	Assessment   models.RiskAssessment
	FallbackUsed bool
	// ParseError describes why the fallback was used.
	ParseError string
}

// ParseRiskAssessment decodes the model's JSON answer. Text that is not JSON,
// or JSON whose risk levels are outside Low/Medium/High, yields the fallback.
func ParseRiskAssessment(raw string) AssessmentOutcome {
	text := stripCodeFence(raw)

	var a models.RiskAssessment
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return fallbackOutcome("invalid JSON: " + err.Error())
	}
	if !a.Conforms() {
		return fallbackOutcome("risk levels outside Low/Medium/High")
	}

	normalizeAssessment(&a)
	return AssessmentOutcome{Assessment: a}
}

func fallbackOutcome(reason string) AssessmentOutcome {
	return AssessmentOutcome{
		Assessment:   models.FallbackRiskAssessment(),
		FallbackUsed: true,
		ParseError:   reason,
	}
}

func normalizeAssessment(a *models.RiskAssessment) {
	if a.Topics == nil {
		a.Topics = []string{}
	}
	d := &a.Details
	for _, s := range []*[]string{&d.ContentRiskFactors, &d.ReputationalRiskFactors, &d.ContextualRiskFactors, &d.PIIFound, &d.LegalFlags} {
		if *s == nil {
			*s = []string{}
		}
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	} else if a.Confidence > 100 {
		a.Confidence = 100
	}
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite
// being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
