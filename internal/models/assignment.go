package models

import (
	"encoding/json"
	"time"
)

// AssignmentType determines how an assignment is scoped.
type AssignmentType string

const (
	// AssignmentTypeClass targets whole classes.
	AssignmentTypeClass AssignmentType = "CLASS"
	// AssignmentTypeIndividual targets explicitly listed students.
	AssignmentTypeIndividual AssignmentType = "INDIVIDUAL"
)

// EvaluationType describes how student responses are graded.
type EvaluationType string

const (
	EvaluationCustom        EvaluationType = "CUSTOM"
	EvaluationVideo         EvaluationType = "VIDEO"
	EvaluationReading       EvaluationType = "READING"
	EvaluationPronunciation EvaluationType = "PRONUNCIATION"
	EvaluationQAndA         EvaluationType = "Q_AND_A"
)

// EvaluationSettings configures grading for an assignment.
type EvaluationSettings struct {
	Type                EvaluationType  `db:"evaluation_type" json:"type"`
	Rules               json.RawMessage `db:"evaluation_rules" json:"rules,omitempty"`
	AcceptableResponses json.RawMessage `db:"acceptable_responses" json:"acceptable_responses,omitempty"`
	AllowLate           bool            `db:"allow_late" json:"allow_late"`
	PassThreshold       float64         `db:"pass_threshold" json:"pass_threshold"`
}

// Assignment is a unit of schoolwork assigned to a class or individual students.
// The aggregate counters are maintained transactionally on every submission so
// reads never have to scan progress rows.
type Assignment struct {
	ID          string         `db:"id" json:"id"`
	Topic       string         `db:"topic" json:"topic"`
	Description string         `db:"description" json:"description"`
	Type        AssignmentType `db:"type" json:"type"`
	CreatedBy   string         `db:"created_by" json:"created_by"`

	Evaluation EvaluationSettings `json:"evaluation"`

	ScheduledPublishAt *time.Time `db:"scheduled_publish_at" json:"scheduled_publish_at,omitempty"`
	DueAt              *time.Time `db:"due_at" json:"due_at,omitempty"`
	IsActive           bool       `db:"is_active" json:"is_active"`

	TotalStudentsInScope    int     `db:"total_students_in_scope" json:"total_students_in_scope"`
	CompletedStudentsCount  int     `db:"completed_students_count" json:"completed_students_count"`
	CompletionRate          float64 `db:"completion_rate" json:"completion_rate"`
	AverageScoreOfCompleted float64 `db:"average_score_of_completed" json:"average_score_of_completed"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.DueAt != nil && reference.After(*a.DueAt)
}

// AssignmentDetail extends Assignment with questions and scope links.
type AssignmentDetail struct {
	Assignment
	Questions  []Question `json:"questions"`
	ClassIDs   []string   `json:"class_ids,omitempty"`
	StudentIDs []string   `json:"student_ids,omitempty"`
}

// AssignmentFilter defines filter criteria for listing assignments.
type AssignmentFilter struct {
	Type           string
	EvaluationType string
	Active         *bool
	CreatedBy      string
	ClassID        string
	StudentID      string
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// ClassAssignment links an assignment to a class scope.
type ClassAssignment struct {
	ID           string    `db:"id" json:"id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// StudentAssignment links an assignment to an individual student.
type StudentAssignment struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
