package models

import "time"

// Question belongs to an assignment and holds the prompt and expected answer.
type Question struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	Position     int       `db:"position" json:"position"`
	Prompt       string    `db:"prompt" json:"prompt"`
	Answer       string    `db:"answer" json:"answer,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
