package models

// RiskDetails carries the free-text factors behind each risk level.
type RiskDetails struct {
	ContentRiskFactors      []string `json:"contentRiskFactors"`
	ReputationalRiskFactors []string `json:"reputationalRiskFactors"`
	ContextualRiskFactors   []string `json:"contextualRiskFactors"`
	PIIFound                []string `json:"piiFound"`
	LegalFlags              []string `json:"legalFlags"`
}

// RiskAssessment is the structured report returned by the risk model. It is
// embedded into reviews and audit entries and serialized only at the store.
// JSON keys follow the model's output schema.
type RiskAssessment struct {
	ContentRisk       RiskLevel   `json:"contentRisk"`
	ReputationalRisk  RiskLevel   `json:"reputationalRisk"`
	ContextualRisk    RiskLevel   `json:"contextualRisk"`
	PIIDetected       bool        `json:"piiDetected"`
	LegalRiskDetected bool        `json:"legalRiskDetected"`
	Sentiment         Sentiment   `json:"sentiment,omitempty"`
	Topics            []string    `json:"topics"`
	Details           RiskDetails `json:"details"`
	Confidence        int         `json:"confidence"`
}

// Levels returns the three category levels in content, reputational, contextual order.
func (a RiskAssessment) Levels() [3]RiskLevel {
	return [3]RiskLevel{a.ContentRisk, a.ReputationalRisk, a.ContextualRisk}
}

// AllLow reports whether every category is Low.
func (a RiskAssessment) AllLow() bool {
	for _, l := range a.Levels() {
		if l != RiskLow {
			return false
		}
	}
	return true
}

// HighestRisk is High if any category is High, else Medium if any is Medium, else Low.
func (a RiskAssessment) HighestRisk() RiskLevel {
	highest := RiskLow
	for _, l := range a.Levels() {
		if l.Rank() > highest.Rank() {
			highest = l
		}
	}
	return highest
}

// Conforms reports whether every risk level is known. Sentiment may be absent.
func (a RiskAssessment) Conforms() bool {
	for _, l := range a.Levels() {
		if !l.Valid() {
			return false
		}
	}
	return a.Sentiment == "" || a.Sentiment.Valid()
}

// FallbackRiskAssessment is the conservative result used when the model's
// answer cannot be parsed.
func FallbackRiskAssessment() RiskAssessment {
	return RiskAssessment{
		ContentRisk:      RiskMedium,
		ReputationalRisk: RiskMedium,
		ContextualRisk:   RiskLow,
		Topics:           []string{},
		Details: RiskDetails{
			ContentRiskFactors:      []string{"Unable to parse risk assessment"},
			ReputationalRiskFactors: []string{},
			ContextualRiskFactors:   []string{},
			PIIFound:                []string{},
			LegalFlags:              []string{},
		},
	}
}
