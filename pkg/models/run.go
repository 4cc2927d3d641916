package models

// Weights are the multipliers of the suitability score factors
type Weights struct {
	SkillMatch  int `json:"skillMatch" yaml:"skill_match"`
	Performance int `json:"performance" yaml:"performance"`
	TimeFit     int `json:"timeFit" yaml:"time_fit"`
}

// WeightOverrides replace individual weights. Unset fields keep their current value.
type WeightOverrides struct {
	SkillMatch  *int `json:"skillMatch,omitempty" yaml:"skill_match"`
	Performance *int `json:"performance,omitempty" yaml:"performance"`
	TimeFit     *int `json:"timeFit,omitempty" yaml:"time_fit"`
}

// Apply returns w with the set fields of o replaced.
func (w Weights) Apply(o *WeightOverrides) Weights {
	if o == nil {
		return w
	}
	if o.SkillMatch != nil {
		w.SkillMatch = *o.SkillMatch
	}
	if o.Performance != nil {
		w.Performance = *o.Performance
	}
	if o.TimeFit != nil {
		w.TimeFit = *o.TimeFit
	}
	return w
}

// Preferences are per-request overrides of the engine configuration
type Preferences struct {
	Weights               *WeightOverrides `json:"weights,omitempty"`
	AutoApprovalThreshold *int             `json:"autoApprovalThreshold,omitempty"`
	ConfidenceFloor       *int             `json:"confidenceFloor,omitempty"`
	ConfidenceCap         *int             `json:"confidenceCap,omitempty"`
}

// RunRequest asks the engine to staff one location for one date
type RunRequest struct {
	Date        string       `json:"date"`
	LocationID  string       `json:"locationId"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// Summary aggregates the outcome of a run
type Summary struct {
	TotalAssignments   int      `json:"totalAssignments"`
	CoveragePercentage int      `json:"coveragePercentage"`
	AverageConfidence  int      `json:"averageConfidence"`
	AutoApproved       int      `json:"autoApproved"`
	RequiresReview     int      `json:"requiresReview"`
	ConflictsResolved  int      `json:"conflictsResolved"`
	FairnessScore      float64  `json:"fairnessScore"`
	UnfilledSlots      []string `json:"unfilledSlots"`
}

// RunResponse is returned by a successful run
type RunResponse struct {
	Assignments []Assignment     `json:"assignments"`
	Conflicts   []ConflictReport `json:"conflicts,omitempty"`
	Summary     Summary          `json:"summary"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// ConflictCheckInput is the body of a standalone conflict check
type ConflictCheckInput struct {
	Existing []Assignment `json:"existing"`
	Proposed []Assignment `json:"proposed"`
}

// ConflictCheckResponse returns the proposed assignments with statuses applied
type ConflictCheckResponse struct {
	Assignments []Assignment     `json:"assignments"`
	Conflicts   []ConflictReport `json:"conflicts"`
}
