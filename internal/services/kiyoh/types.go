package kiyoh

import "time"

// Question types carried in reviewContent.
const (
	QuestionOpinion  = "DEFAULT_OPINION"
	QuestionOneLiner = "DEFAULT_ONELINER"
)

type ResponseType string

const (
	ResponsePublic  ResponseType = "PUBLIC"
	ResponsePrivate ResponseType = "PRIVATE"
)

func (t ResponseType) Valid() bool {
	switch t {
	case ResponsePublic, ResponsePrivate:
		return true
	}
	return false
}

// Credentials identify one Kiyoh location.
type Credentials struct {
	APIKey     string
	LocationID string
	TenantID   string
}

func (c Credentials) tenant() string {
	if c.TenantID == "" {
		return DefaultTenantID
	}
	return c.TenantID
}

type ContentItem struct {
	QuestionGroup string `json:"questionGroup"`
	QuestionType  string `json:"questionType"`
	Rating        any    `json:"rating"`
	Order         int    `json:"order"`
}

type Review struct {
	ReviewID       string        `json:"reviewId"`
	ReviewAuthor   string        `json:"reviewAuthor"`
	City           string        `json:"city"`
	Rating         float64       `json:"rating"`
	ReviewContent  []ContentItem `json:"reviewContent"`
	DateSince      string        `json:"dateSince"`
	UpdatedSince   string        `json:"updatedSince"`
	ReviewLanguage string        `json:"reviewLanguage"`
}

// Content returns the answer to the given question type, or "".
func (r *Review) Content(questionType string) string {
	for _, item := range r.ReviewContent {
		if item.QuestionType != questionType {
			continue
		}
		if s, ok := item.Rating.(string); ok {
			return s
		}
	}
	return ""
}

// Opinion is the free text of the review, falling back to the one-liner.
func (r *Review) Opinion() string {
	if text := r.Content(QuestionOpinion); text != "" {
		return text
	}
	return r.Content(QuestionOneLiner)
}

// Timestamp parses dateSince; nil when absent or malformed.
func (r *Review) Timestamp() *time.Time {
	if r.DateSince == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, r.DateSince); err == nil {
			return &t
		}
	}
	return nil
}

type ReviewsResponse struct {
	LocationID    string   `json:"locationId"`
	LocationName  string   `json:"locationName"`
	AverageRating float64  `json:"averageRating"`
	NumberReviews int      `json:"numberReviews"`
	Reviews       []Review `json:"reviews"`
}

type FetchOptions struct {
	DateSince    *time.Time
	UpdatedSince *time.Time
	Limit        int
	OrderBy      string // CREATE_DATE, UPDATE_DATE, RATING
	SortOrder    string // ASC, DESC
}

type Invite struct {
	Email     string `json:"invite_email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	RefCode   string `json:"ref_code,omitempty"`
	Language  string `json:"language"`
	Delay     int    `json:"delay"`
}

type Statistics struct {
	LocationID     string  `json:"locationId"`
	LocationName   string  `json:"locationName"`
	AverageRating  float64 `json:"averageRating"`
	NumberReviews  int     `json:"numberReviews"`
	Recommendation float64 `json:"percentageRecommendation"`
}

type apiError struct {
	ErrorCode     string `json:"errorCode"`
	DetailedError []struct {
		Message string `json:"message"`
	} `json:"detailedError"`
}
