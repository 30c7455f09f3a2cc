package models

// ConditionState is the five-point grading scale used across the pipeline.
type ConditionState string

const (
	ConditionNew     ConditionState = "NEW"
	ConditionLikeNew ConditionState = "LIKE_NEW"
	ConditionGood    ConditionState = "GOOD"
	ConditionFair    ConditionState = "FAIR"
	ConditionPoor    ConditionState = "POOR"
)

// ProductAnalysis is the vision model's structured output for one physical item.
// It is produced once per item and treated as immutable afterwards; re-running
// the analysis creates a new value rather than mutating this one.
type ProductAnalysis struct {
	Product           ProductIdentity             `json:"product"`
	Condition         ConditionAssessment         `json:"condition"`
	MarketPositioning MarketPositioning           `json:"marketPositioning"`
	PlatformContent   map[Platform]ListingContent `json:"platformContent,omitempty"`
	EstimatedValue    ValueRange                  `json:"estimatedRetailValue"`
}

type ProductIdentity struct {
	Name       string   `json:"name" validate:"required"`
	Brand      string   `json:"brand" validate:"required"`
	Category   string   `json:"category"`
	Model      string   `json:"model,omitempty"`
	Features   []string `json:"features"`
	Confidence float64  `json:"confidence"`
}

type ConditionAssessment struct {
	State      ConditionState `json:"state" validate:"required,oneof=NEW LIKE_NEW GOOD FAIR POOR"`
	Notes      string         `json:"notes"`
	Defects    []string       `json:"defects"`
	Confidence float64        `json:"confidence"`
}

type MarketPositioning struct {
	TargetBuyer         string   `json:"targetBuyer"`
	UseCases            []string `json:"useCases"`
	UniqueSellingPoints []string `json:"uniqueSellingPoints"`
	CompetitorProducts  []string `json:"competitorProducts"`
}

// ListingContent is platform-tuned title/description copy the vision model
// generates alongside the analysis.
type ListingContent struct {
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	ItemSpecifics map[string]string `json:"itemSpecifics,omitempty"`
}

type ValueRange struct {
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Confidence float64 `json:"confidence"`
}

// Midpoint is the estimate the price optimizer blends with market data.
func (v ValueRange) Midpoint() float64 {
	return (v.Low + v.High) / 2
}
