package models

import (
	"encoding/json"
	"time"
)

// StudentProgress records a student's latest attempt at a single question.
// The (student_id, assignment_id, question_id) triple is unique; re-submission
// replaces the previous attempt so per-question dedupe happens at write time.
type StudentProgress struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	AssignmentID    string          `db:"assignment_id" json:"assignment_id"`
	QuestionID      string          `db:"question_id" json:"question_id"`
	Completed       bool            `db:"completed" json:"completed"`
	Correct         bool            `db:"correct" json:"correct"`
	Score           float64         `db:"score" json:"score"`
	Response        string          `db:"response" json:"response"`
	AnalysisPayload json.RawMessage `db:"analysis_payload" json:"analysis_payload,omitempty"`
	AttemptCount    int             `db:"attempt_count" json:"attempt_count"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// StudentAssignmentStatus summarises one student's deduped standing on an assignment.
type StudentAssignmentStatus struct {
	StudentID         string  `db:"student_id" json:"student_id"`
	AssignmentID      string  `db:"assignment_id" json:"assignment_id"`
	QuestionsAnswered int     `db:"questions_answered" json:"questions_answered"`
	CorrectAnswers    int     `db:"correct_answers" json:"correct_answers"`
	TotalQuestions    int     `db:"total_questions" json:"total_questions"`
	CompletionPercent float64 `db:"completion_percent" json:"completion_percent"`
	Accuracy          float64 `db:"accuracy" json:"accuracy"`
	AverageScore      float64 `db:"average_score" json:"average_score"`
	Completed         bool    `db:"completed" json:"completed"`
}

// ProgressFilter scopes progress listings for teacher review.
type ProgressFilter struct {
	AssignmentID string
	StudentID    string
	QuestionID   string
	Page         int
	PageSize     int
}
