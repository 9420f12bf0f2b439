package models

import "time"

// StudentStats is the per-student rollup row, updated inside the submission
// transaction.
type StudentStats struct {
	StudentID            string    `db:"student_id" json:"student_id"`
	CompletedAssignments int       `db:"completed_assignments" json:"completed_assignments"`
	QuestionsAnswered    int       `db:"questions_answered" json:"questions_answered"`
	CorrectAnswers       int       `db:"correct_answers" json:"correct_answers"`
	TotalScore           float64   `db:"total_score" json:"total_score"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Accuracy returns the deduped ratio of correct answers to questions answered.
func (s StudentStats) Accuracy() float64 {
	if s.QuestionsAnswered == 0 {
		return 0
	}
	return float64(s.CorrectAnswers) / float64(s.QuestionsAnswered)
}

// ClassStats is the per-class rollup row.
type ClassStats struct {
	ClassID              string    `db:"class_id" json:"class_id"`
	CompletedAssignments int       `db:"completed_assignments" json:"completed_assignments"`
	QuestionsAnswered    int       `db:"questions_answered" json:"questions_answered"`
	CorrectAnswers       int       `db:"correct_answers" json:"correct_answers"`
	TotalScore           float64   `db:"total_score" json:"total_score"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// SchoolStats is the single school-wide rollup row.
type SchoolStats struct {
	ID                   int       `db:"id" json:"-"`
	Submissions          int       `db:"submissions" json:"submissions"`
	CompletedAssignments int       `db:"completed_assignments" json:"completed_assignments"`
	QuestionsAnswered    int       `db:"questions_answered" json:"questions_answered"`
	CorrectAnswers       int       `db:"correct_answers" json:"correct_answers"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// StatsDelta carries the increments a single submission contributes to the
// student, class and school rollups. Computed inside the submission transaction
// by comparing deduped counts before and after the upsert.
type StatsDelta struct {
	StudentID         string
	ClassIDs          []string
	QuestionsAnswered int
	CorrectAnswers    int
	ScoreDelta        float64
	CompletedDelta    int
}

// AssignmentStatsView is the read model returned by the stats endpoints.
type AssignmentStatsView struct {
	AssignmentID            string                    `json:"assignment_id"`
	Topic                   string                    `json:"topic"`
	TotalStudentsInScope    int                       `json:"total_students_in_scope"`
	CompletedStudentsCount  int                       `json:"completed_students_count"`
	CompletionRate          float64                   `json:"completion_rate"`
	AverageScoreOfCompleted float64                   `json:"average_score_of_completed"`
	Students                []StudentAssignmentStatus `json:"students,omitempty"`
}

// ClassStatsView aggregates a class rollup with per-assignment completion.
type ClassStatsView struct {
	ClassID     string                 `json:"class_id"`
	ClassName   string                 `json:"class_name"`
	Stats       ClassStats             `json:"stats"`
	Assignments []ClassAssignmentStats `json:"assignments,omitempty"`
}

// SystemMetrics is a lightweight aggregate snapshot for operational endpoints.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// ClassAssignmentStats summarises one assignment inside a class view.
type ClassAssignmentStats struct {
	AssignmentID           string  `db:"assignment_id" json:"assignment_id"`
	Topic                  string  `db:"topic" json:"topic"`
	CompletedStudentsCount int     `db:"completed_students_count" json:"completed_students_count"`
	TotalStudentsInScope   int     `db:"total_students_in_scope" json:"total_students_in_scope"`
	CompletionRate         float64 `db:"completion_rate" json:"completion_rate"`
}
