// Package models defines the request-level student record and its validation rules.
package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Gender is the student gender category used during training.
type Gender string

// AgeBand groups students into the three training-time age ranges.
type AgeBand string

// HighestEducation is the highest prior qualification of a student.
type HighestEducation string

// Region is the geographic region a student belongs to.
type Region string

// IMDBand is the Index of Multiple Deprivation decile band.
type IMDBand string

// Disability is the declared disability status.
type Disability string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"

	AgeBandYoung  AgeBand = "0-35"
	AgeBandMiddle AgeBand = "35-55"
	AgeBandSenior AgeBand = "55<="

	EducationNoFormal     HighestEducation = "No Formal quals"
	EducationLowerThanA   HighestEducation = "Lower Than A Level"
	EducationALevel       HighestEducation = "A Level or Equivalent"
	EducationHE           HighestEducation = "HE Qualification"
	EducationPostGraduate HighestEducation = "Post Graduate Qualification"

	DisabilityYes Disability = "Y"
	DisabilityNo  Disability = "N"
)

// Regions lists every region label the encoders were trained on.
var Regions = []Region{
	"East Anglian Region",
	"East Midlands Region",
	"Ireland",
	"London Region",
	"North Region",
	"North Western Region",
	"Scotland",
	"South East Region",
	"South Region",
	"South West Region",
	"Wales",
	"West Midlands Region",
	"Yorkshire Region",
}

// IMDBands lists the deprivation bands in ascending order. The ordering is
// meaningful: band position doubles as the ordinal fallback encoding.
var IMDBands = []IMDBand{
	"0-10%",
	"10-20",
	"20-30%",
	"30-40%",
	"40-50%",
	"50-60%",
	"60-70%",
	"70-80%",
	"80-90%",
	"90-100%",
}

// StudentFeatures is a single student observation as submitted by a caller.
// Required numeric fields are pointers so a missing field is distinguishable
// from a legitimate zero. The record is treated as immutable once validated.
type StudentFeatures struct {
	// Course and module information
	CodeModule       string `json:"code_module" validate:"required"`
	CodePresentation string `json:"code_presentation" validate:"required"`
	StudentID        int    `json:"id_student" validate:"required,gt=0"`

	// Demographics
	Gender           Gender           `json:"gender" validate:"required"`
	Region           Region           `json:"region" validate:"required"`
	HighestEducation HighestEducation `json:"highest_education" validate:"required"`
	IMDBand          IMDBand          `json:"imd_band" validate:"required"`
	AgeBand          AgeBand          `json:"age_band" validate:"required"`
	Disability       Disability       `json:"disability" validate:"required"`

	// Academic background
	NumPrevAttempts int  `json:"num_of_prev_attempts" validate:"gte=0"`
	StudiedCredits  *int `json:"studied_credits" validate:"required,gt=0"`

	// Course completion
	CompletedCourse  *bool `json:"completed_course" validate:"required"`
	WithdrawalStatus bool  `json:"withdrawal_status"`

	// Engagement metrics
	TotalClicks         *float64 `json:"total_clicks" validate:"required,gte=0"`
	AvgClicksPerSession *float64 `json:"avg_clicks_per_session" validate:"required,gte=0"`
	ClickVariability    *float64 `json:"click_variability" validate:"required,gte=0"`
	TotalSessions       *int     `json:"total_sessions" validate:"required,gte=0"`
	ActiveDays          *int     `json:"active_days" validate:"required,gte=0"`
	EngagementDuration  *float64 `json:"engagement_duration" validate:"required,gte=0"`
	DailyEngagementRate *float64 `json:"daily_engagement_rate" validate:"required,gte=0,lte=1"`

	// Access patterns
	FirstAccessDay *int `json:"first_access_day" validate:"required,gte=0"`
	LastAccessDay  *int `json:"last_access_day" validate:"required,gte=0"`

	// Assessment metrics
	AvgAssessmentScore *float64 `json:"avg_assessment_score" validate:"required,gte=0,lte=100"`
	ScoreConsistency   *float64 `json:"score_consistency" validate:"required,gte=0"`
	TotalAssessments   *int     `json:"total_assessments" validate:"required,gte=0"`
	FirstSubmission    *int     `json:"first_submission" validate:"required,gte=0"`
	LastSubmission     *int     `json:"last_submission" validate:"required,gte=0"`
	BankedAssessments  int      `json:"banked_assessments" validate:"gte=0"`

	// Kept for reference only, never fed to the model
	FinalResult string `json:"final_result,omitempty"`
}

var validate = validator.New()

// Validate checks field presence, documented bounds, enum membership and
// cross-field day ordering. It must pass before the record is assembled into
// a feature vector.
func (s *StudentFeatures) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("student record validation: %w", err)
	}

	if err := s.validateEnums(); err != nil {
		return err
	}

	if *s.FirstAccessDay > *s.LastAccessDay {
		return fmt.Errorf("first_access_day %d is after last_access_day %d", *s.FirstAccessDay, *s.LastAccessDay)
	}
	if *s.FirstSubmission > *s.LastSubmission {
		return fmt.Errorf("first_submission %d is after last_submission %d", *s.FirstSubmission, *s.LastSubmission)
	}

	return nil
}

// validateEnums rejects values outside the closed categorical sets. Unknown
// categories are still encodable downstream, but only for values that at
// least parse as the right kind of label; enum checks run on the declared
// demographic fields except region, which accepts free-form labels so the
// encoder fallback path stays reachable.
func (s *StudentFeatures) validateEnums() error {
	switch s.Gender {
	case GenderMale, GenderFemale:
	default:
		return fmt.Errorf("unknown gender %q", s.Gender)
	}

	switch s.AgeBand {
	case AgeBandYoung, AgeBandMiddle, AgeBandSenior:
	default:
		return fmt.Errorf("unknown age_band %q", s.AgeBand)
	}

	switch s.HighestEducation {
	case EducationNoFormal, EducationLowerThanA, EducationALevel, EducationHE, EducationPostGraduate:
	default:
		return fmt.Errorf("unknown highest_education %q", s.HighestEducation)
	}

	switch s.Disability {
	case DisabilityYes, DisabilityNo:
	default:
		return fmt.Errorf("unknown disability %q", s.Disability)
	}

	return nil
}

// CategoricalValues returns the raw categorical labels keyed by model column
// name, in the representation the label encoders were trained on.
func (s *StudentFeatures) CategoricalValues() map[string]string {
	return map[string]string{
		"gender":            string(s.Gender),
		"region":            string(s.Region),
		"highest_education": string(s.HighestEducation),
		"imd_band":          string(s.IMDBand),
		"age_band":          string(s.AgeBand),
		"disability":        string(s.Disability),
	}
}

// NumericValue resolves a model column name to its numeric value. The second
// return is false when the column is not a numeric field of the record.
func (s *StudentFeatures) NumericValue(column string) (float64, bool) {
	switch column {
	case "total_clicks":
		return *s.TotalClicks, true
	case "avg_clicks_per_session":
		return *s.AvgClicksPerSession, true
	case "click_variability":
		return *s.ClickVariability, true
	case "total_sessions":
		return float64(*s.TotalSessions), true
	case "active_days":
		return float64(*s.ActiveDays), true
	case "engagement_duration":
		return *s.EngagementDuration, true
	case "daily_engagement_rate":
		return *s.DailyEngagementRate, true
	case "first_access_day":
		return float64(*s.FirstAccessDay), true
	case "last_access_day":
		return float64(*s.LastAccessDay), true
	case "avg_assessment_score":
		return *s.AvgAssessmentScore, true
	case "score_consistency":
		return *s.ScoreConsistency, true
	case "total_assessments":
		return float64(*s.TotalAssessments), true
	case "first_submission":
		return float64(*s.FirstSubmission), true
	case "last_submission":
		return float64(*s.LastSubmission), true
	case "banked_assessments":
		return float64(s.BankedAssessments), true
	case "studied_credits":
		return float64(*s.StudiedCredits), true
	case "num_of_prev_attempts":
		return float64(s.NumPrevAttempts), true
	case "completed_course":
		if *s.CompletedCourse {
			return 1, true
		}
		return 0, true
	case "withdrawal_status":
		if s.WithdrawalStatus {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
