package model

import (
	"time"
)

// PortfolioOwner is the portfolio-side record for a chat user. Tool
// handlers resolve it before writing; a missing owner is reported to the
// model as a structured payload, not an error.
type PortfolioOwner struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
}

// Qualification records a completed course or certification.
type Qualification struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	CourseName     string    `json:"course_name"`
	Institution    string    `json:"institution"`
	CompletionDate string    `json:"completion_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// Activity records a professional-development activity.
type Activity struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Hours       float64   `json:"hours"`
	CreatedAt   time.Time `json:"created_at"`
}

// CompetencyStatus is the progress state of a tracked competency.
type CompetencyStatus string

const (
	CompetencyNotStarted CompetencyStatus = "not_started"
	CompetencyInProgress CompetencyStatus = "in_progress"
	CompetencyAchieved   CompetencyStatus = "achieved"
)

// ValidCompetencyStatus reports whether s is a known status.
func ValidCompetencyStatus(s CompetencyStatus) bool {
	switch s {
	case CompetencyNotStarted, CompetencyInProgress, CompetencyAchieved:
		return true
	}
	return false
}

// Competency tracks one named competency per portfolio owner.
type Competency struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	Name      string           `json:"name"`
	Status    CompetencyStatus `json:"status"`
	UpdatedAt time.Time        `json:"updated_at"`
}
