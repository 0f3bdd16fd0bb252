package services

import (
	"strconv"
	"strings"

	"github.com/huangang/reviewbuddy/backend/internal/models"
)

const riskAssessmentPrompt = `You are an expert AI content moderator for a review management system. Analyze the following review and assess risks.

REVIEW TEXT:
{reviewText}

RATING: {rating}/10
PLATFORM: {platform}
REVIEWER: {reviewerName}

Analyze this review for THREE RISK CATEGORIES:

1. CONTENT RISK - Check for:
   - Hate speech or discrimination
   - Threats or intimidation
   - Defamation
   - Explicit or abusive language
   - Legal accusations or claims
   - Requests for compensation
   - Personal data (GDPR/PII: names, phone numbers, addresses, emails)

2. REPUTATIONAL RISK - Check for:
   - High emotional charge
   - Viral potential (extreme language, shocking claims)
   - Influencer or media likelihood
   - Repeated complaint patterns
   - Signs of competitor manipulation

3. CONTEXTUAL RISK - Check for:
   - Signs of ongoing disputes
   - Prior unresolved issues mentioned
   - Previous negative interactions referenced

4. SENTIMENT & TOPICS - Determine:
   - SENTIMENT: Is the overall tone Positive, Neutral, or Negative?
   - TOPICS: Extract 2-4 key themes or topics mentioned (e.g., "Customer Service", "Product Quality", "Pricing").

IMPORTANT RULES:
- When uncertain, choose the HIGHER risk level
- PII detection should flag ANY personal information
- Legal risk includes ANY legal threats or accusations

Respond in JSON format ONLY:
{
  "contentRisk": "Low" | "Medium" | "High",
  "reputationalRisk": "Low" | "Medium" | "High",
  "contextualRisk": "Low" | "Medium" | "High",
  "piiDetected": true | false,
  "legalRiskDetected": true | false,
  "sentiment": "Positive" | "Neutral" | "Negative",
  "topics": ["topic1", "topic2"],
  "details": {
    "contentRiskFactors": ["list of specific factors found"],
    "reputationalRiskFactors": ["list of specific factors found"],
    "contextualRiskFactors": ["list of specific factors found"],
    "piiFound": ["list of PII types found, if any"],
    "legalFlags": ["list of legal concerns, if any"]
  },
  "confidence": 0-100
}

Respond with raw JSON only. Do not include code blocks, markdown, or any other formatting.`

const responseGenerationPrompt = `You are a professional customer service representative responding to a review. Generate an appropriate response.

COMPANY NAME: {companyName}
BRAND TONE: {brandTone}

REVIEW:
Rating: {rating}/10
Review Text: {reviewText}

TONE GUIDELINES:
- Professional: Formal, businesslike, courteous, solution-focused
- Empathetic: Warm, understanding, acknowledging feelings, supportive
- Friendly: Casual but respectful, approachable, personable
- Neutral: Balanced, factual, neither warm nor cold

RULES:
1. Match the specified brand tone exactly
2. Be polite, calm, and human
3. NEVER be defensive or sarcastic
4. Acknowledge the customer's experience
5. Show empathy WITHOUT admitting legal liability
6. Offer a next step if appropriate (e.g., contact support)
7. Do NOT speculate on facts
8. Do NOT promise refunds or compensation
9. Do NOT give legal, financial, or medical advice
10. Do NOT blame anyone or shift responsibility
11. Do NOT disclose internal processes
12. Do NOT argue with the reviewer
13. Keep response concise (2-4 sentences)

Generate the response in the SAME LANGUAGE as the review text.

Respond with ONLY the response text, no JSON or formatting.`

const (
	DefaultPlatform     = "kiyoh"
	DefaultReviewerName = "Anonymous"
	DefaultCompanyName  = "Our Company"
)

// RiskPromptInput is the review data the risk prompt is built from.
type RiskPromptInput struct {
	ReviewText   string
	Rating       int
	Platform     string
	ReviewerName string
}

// BuildRiskAssessmentPrompt renders the risk prompt. Placeholders are filled
// in a single pass so review text containing braces is never re-expanded.
func BuildRiskAssessmentPrompt(in RiskPromptInput) string {
	platform := in.Platform
	if platform == "" {
		platform = DefaultPlatform
	}
	reviewer := in.ReviewerName
	if reviewer == "" {
		reviewer = DefaultReviewerName
	}
	return strings.NewReplacer(
		"{reviewText}", in.ReviewText,
		"{rating}", strconv.Itoa(in.Rating),
		"{platform}", platform,
		"{reviewerName}", reviewer,
	).Replace(riskAssessmentPrompt)
}

// ResponsePromptInput is what the reply prompt needs from the review and brand.
type ResponsePromptInput struct {
	ReviewText  string
	Rating      int
	CompanyName string
	BrandTone   models.BrandTone
}

func BuildResponsePrompt(in ResponsePromptInput) string {
	company := in.CompanyName
	if company == "" {
		company = DefaultCompanyName
	}
	tone := in.BrandTone
	if tone == "" {
		tone = models.ToneProfessional
	}
	return strings.NewReplacer(
		"{companyName}", company,
		"{brandTone}", string(tone),
		"{rating}", strconv.Itoa(in.Rating),
		"{reviewText}", in.ReviewText,
	).Replace(responseGenerationPrompt)
}
