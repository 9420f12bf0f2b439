package models

import (
	"encoding/json"
	"time"
)

// QuestionInput is one question in a create/update payload.
type QuestionInput struct {
	Prompt string `json:"prompt" validate:"required"`
	Answer string `json:"answer"`
}

// EvaluationInput configures grading in a create/update payload.
type EvaluationInput struct {
	Type                EvaluationType  `json:"type" validate:"required,oneof=CUSTOM VIDEO READING PRONUNCIATION Q_AND_A"`
	Rules               json.RawMessage `json:"rules,omitempty"`
	AcceptableResponses json.RawMessage `json:"acceptable_responses,omitempty"`
	AllowLate           bool            `json:"allow_late"`
	PassThreshold       float64         `json:"pass_threshold" validate:"gte=0,lte=1"`
}

// CreateAssignmentRequest is the full creation payload.
type CreateAssignmentRequest struct {
	Topic              string          `json:"topic" validate:"required,max=200"`
	Description        string          `json:"description"`
	Type               AssignmentType  `json:"type" validate:"required,oneof=CLASS INDIVIDUAL"`
	Evaluation         EvaluationInput `json:"evaluation" validate:"required"`
	ScheduledPublishAt *time.Time      `json:"scheduled_publish_at,omitempty"`
	DueAt              *time.Time      `json:"due_at,omitempty"`
	IsActive           bool            `json:"is_active"`
	ClassIDs           []string        `json:"class_ids,omitempty" validate:"dive,uuid"`
	StudentIDs         []string        `json:"student_ids,omitempty" validate:"dive,uuid"`
	Questions          []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// UpdateAssignmentRequest replaces the mutable assignment fields.
type UpdateAssignmentRequest struct {
	Topic              string          `json:"topic" validate:"required,max=200"`
	Description        string          `json:"description"`
	Type               AssignmentType  `json:"type" validate:"required,oneof=CLASS INDIVIDUAL"`
	Evaluation         EvaluationInput `json:"evaluation" validate:"required"`
	ScheduledPublishAt *time.Time      `json:"scheduled_publish_at,omitempty"`
	DueAt              *time.Time      `json:"due_at,omitempty"`
	IsActive           bool            `json:"is_active"`
	ClassIDs           []string        `json:"class_ids,omitempty" validate:"dive,uuid"`
	StudentIDs         []string        `json:"student_ids,omitempty" validate:"dive,uuid"`
}

// VariantAssignmentRequest is the shorter payload accepted by the
// reading/video/pronunciation/IELTS creators. The variant endpoint seeds the
// evaluation settings.
type VariantAssignmentRequest struct {
	Topic              string          `json:"topic" validate:"required,max=200"`
	Description        string          `json:"description"`
	Type               AssignmentType  `json:"type" validate:"required,oneof=CLASS INDIVIDUAL"`
	ScheduledPublishAt *time.Time      `json:"scheduled_publish_at,omitempty"`
	DueAt              *time.Time      `json:"due_at,omitempty"`
	IsActive           bool            `json:"is_active"`
	AllowLate          bool            `json:"allow_late"`
	PassThreshold      *float64        `json:"pass_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	ClassIDs           []string        `json:"class_ids,omitempty" validate:"dive,uuid"`
	StudentIDs         []string        `json:"student_ids,omitempty" validate:"dive,uuid"`
	Questions          []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// AnswerInput is one answered question in a submission.
type AnswerInput struct {
	QuestionID  string `json:"question_id" validate:"required,uuid"`
	Response    string `json:"response"`
	AudioURL    string `json:"audio_url,omitempty" validate:"omitempty,url"`
	AudioBase64 string `json:"audio_base64,omitempty"`
}

// SubmitProgressRequest carries a student's answers for an assignment.
type SubmitProgressRequest struct {
	Answers []AnswerInput `json:"answers" validate:"required,min=1,dive"`
}

// CreateClassRequest is the class creation payload.
type CreateClassRequest struct {
	Name      string  `json:"name" validate:"required,max=100"`
	Grade     string  `json:"grade" validate:"required,max=20"`
	TeacherID *string `json:"teacher_id,omitempty" validate:"omitempty,uuid"`
}

// UpdateClassRequest is the class update payload.
type UpdateClassRequest struct {
	Name      string  `json:"name" validate:"required,max=100"`
	Grade     string  `json:"grade" validate:"required,max=20"`
	TeacherID *string `json:"teacher_id,omitempty" validate:"omitempty,uuid"`
}

// AddClassStudentRequest enrolls a student into a class.
type AddClassStudentRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}

// CreateUserRequest is the admin user creation payload.
type CreateUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6"`
	FullName string   `json:"full_name" validate:"required,max=150"`
	Role     UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
}

// UpdateUserRequest is the admin user update payload.
type UpdateUserRequest struct {
	FullName string   `json:"full_name" validate:"required,max=150"`
	Role     UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	Active   bool     `json:"active"`
}

// ClassReportRequest asks for an async class completion report.
type ClassReportRequest struct {
	ClassID string `json:"class_id" validate:"required,uuid"`
	Format  string `json:"format" validate:"required,oneof=csv pdf"`
}
