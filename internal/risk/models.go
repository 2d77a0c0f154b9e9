package risk

import (
	"math"
	"time"

	id "creaturegrc/pkg/domain"
	dErrors "creaturegrc/pkg/domain-errors"
)

// Rating is an ordinal likelihood or impact level.
type Rating string

const (
	RatingVeryLow  Rating = "very_low"
	RatingLow      Rating = "low"
	RatingMedium   Rating = "medium"
	RatingHigh     Rating = "high"
	RatingVeryHigh Rating = "very_high"
)

// Ordinal maps ratings onto 1..5. Unknown ratings return 0, which Valid
// screens out before any score is computed.
func (r Rating) Ordinal() int {
	switch r {
	case RatingVeryLow:
		return 1
	case RatingLow:
		return 2
	case RatingMedium:
		return 3
	case RatingHigh:
		return 4
	case RatingVeryHigh:
		return 5
	}
	return 0
}

func (r Rating) Valid() bool { return r.Ordinal() != 0 }

// Effectiveness is the mitigation credit a mapped control earns.
type Effectiveness string

const (
	EffectivenessLow    Effectiveness = "low"
	EffectivenessMedium Effectiveness = "medium"
	EffectivenessHigh   Effectiveness = "high"
)

// Weight is the numeric mitigation factor.
func (e Effectiveness) Weight() float64 {
	switch e {
	case EffectivenessLow:
		return 0.3
	case EffectivenessMedium:
		return 0.6
	case EffectivenessHigh:
		return 0.9
	}
	return 0
}

func (e Effectiveness) Valid() bool { return e.Weight() != 0 }

// Risk is one threat/impact pairing. InherentScore is a pure function of the
// two ratings; ResidualScore is derived state, recomputed on every mapping
// change and never hand-edited.
type Risk struct {
	ID            id.RiskID `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Likelihood    Rating    `json:"likelihood"`
	Impact        Rating    `json:"impact"`
	InherentScore int       `json:"inherent_score"`
	ResidualScore int       `json:"residual_score"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewRisk(riskID id.RiskID, title string, likelihood, impact Rating, now time.Time) (*Risk, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "risk title is required")
	}
	if !likelihood.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown likelihood: "+string(likelihood))
	}
	if !impact.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown impact: "+string(impact))
	}
	inherent := likelihood.Ordinal() * impact.Ordinal()
	return &Risk{
		ID:            riskID,
		Title:         title,
		Likelihood:    likelihood,
		Impact:        impact,
		InherentScore: inherent,
		ResidualScore: inherent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Mapping declares that a control mitigates a risk.
type Mapping struct {
	RiskID        id.RiskID     `json:"risk_id"`
	ControlID     id.ControlID  `json:"control_id"`
	Effectiveness Effectiveness `json:"effectiveness"`
}

// ResidualScore discounts the inherent score by the mean effectiveness of
// the implemented mitigations. No credit without at least one implemented
// control; the floor is 1.
func ResidualScore(inherent int, implementedWeights []float64) int {
	if len(implementedWeights) == 0 {
		return inherent
	}
	var sum float64
	for _, w := range implementedWeights {
		sum += w
	}
	mean := sum / float64(len(implementedWeights))
	residual := int(math.Ceil(float64(inherent) * (1 - mean)))
	if residual < 1 {
		residual = 1
	}
	return residual
}
