package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edulink-app/assignment-api/internal/models"
	"github.com/edulink-app/assignment-api/internal/repository"
	appErrors "github.com/edulink-app/assignment-api/pkg/errors"
	"github.com/edulink-app/assignment-api/pkg/speech"
)

type progressAssignmentRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
	ScopeForStudent(ctx context.Context, assignmentID, studentID string) (bool, []string, error)
}

type progressRepository interface {
	RecordSubmission(ctx context.Context, assignmentID, studentID string, records []repository.SubmissionRecord, classIDs []string) (*repository.SubmissionResult, error)
	StatusFor(ctx context.Context, assignmentID, studentID string) (*models.StudentAssignmentStatus, error)
	StatusesFor(ctx context.Context, assignmentID string) ([]models.StudentAssignmentStatus, error)
	ListByAssignment(ctx context.Context, filter models.ProgressFilter) ([]models.StudentProgress, int, error)
}

type speechAnalyzer interface {
	Analyze(ctx context.Context, req speech.AnalyzeRequest) (*speech.AnalyzeResult, error)
}

type progressAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type progressCache interface {
	Invalidate(ctx context.Context, pattern string) error
}

// ProgressService handles student submissions and teacher review of progress.
type ProgressService struct {
	assignments progressAssignmentRepository
	progress    progressRepository
	speech      speechAnalyzer
	audit       progressAuditor
	cache       progressCache
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewProgressService constructs a ProgressService.
func NewProgressService(assignments progressAssignmentRepository, progress progressRepository, analyzer speechAnalyzer, audit progressAuditor, cache progressCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProgressService{
		assignments: assignments,
		progress:    progress,
		speech:      analyzer,
		audit:       audit,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Submit grades a student's answers and records them with all rollups updated
// in one transaction.
func (s *ProgressService) Submit(ctx context.Context, actor Actor, assignmentID string, req models.SubmitProgressRequest) (*models.StudentAssignmentStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	detail, err := s.assignments.FindDetailByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	if !detail.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotPublished, "assignment is not published yet")
	}
	if detail.IsPastDue(time.Now().UTC()) && !detail.Evaluation.AllowLate {
		return nil, appErrors.Clone(appErrors.ErrPastDue, "assignment deadline has passed")
	}

	inScope, classIDs, err := s.assignments.ScopeForStudent(ctx, assignmentID, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment scope")
	}
	if !inScope {
		return nil, appErrors.Clone(appErrors.ErrOutOfScope, "assignment is not assigned to this student")
	}

	questions := make(map[string]models.Question, len(detail.Questions))
	for _, q := range detail.Questions {
		questions[q.ID] = q
	}

	records := make([]repository.SubmissionRecord, 0, len(req.Answers))
	seen := make(map[string]bool, len(req.Answers))
	for _, answer := range req.Answers {
		question, ok := questions[answer.QuestionID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "answer references a question outside this assignment")
		}
		if seen[answer.QuestionID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate answer for the same question")
		}
		seen[answer.QuestionID] = true

		record, err := s.grade(ctx, detail.Evaluation, question, answer)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	result, err := s.progress.RecordSubmission(ctx, assignmentID, actor.UserID, records, classIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
	}

	s.metrics.RecordSubmission()
	s.writeAudit(ctx, actor, assignmentID, result)
	s.invalidate(ctx, assignmentID, actor.UserID, classIDs)

	return &result.Status, nil
}

// Status returns a student's own standing on an assignment.
func (s *ProgressService) Status(ctx context.Context, actor Actor, assignmentID, studentID string) (*models.StudentAssignmentStatus, error) {
	if actor.Role == models.RoleStudent && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own progress")
	}
	status, err := s.progress.StatusFor(ctx, assignmentID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress status")
	}
	return status, nil
}

// ListProgress returns raw progress rows for teacher review.
func (s *ProgressService) ListProgress(ctx context.Context, actor Actor, filter models.ProgressFilter) ([]models.StudentProgress, int, error) {
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.UserID
	}
	rows, total, err := s.progress.ListByAssignment(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list progress")
	}
	return rows, total, nil
}

// grade converts one answer into a persisted record per the evaluation type.
func (s *ProgressService) grade(ctx context.Context, settings models.EvaluationSettings, question models.Question, answer models.AnswerInput) (repository.SubmissionRecord, error) {
	record := repository.SubmissionRecord{
		QuestionID: question.ID,
		Response:   answer.Response,
	}

	switch settings.Type {
	case models.EvaluationVideo:
		// Watching through counts as completion.
		record.Correct = true
		record.Score = 1

	case models.EvaluationPronunciation:
		if s.speech == nil {
			return record, appErrors.Clone(appErrors.ErrInternal, "speech analyzer is not configured")
		}
		if answer.AudioURL == "" && answer.AudioBase64 == "" {
			return record, appErrors.Clone(appErrors.ErrValidation, "pronunciation answers require audio")
		}
		reference := question.Answer
		if reference == "" {
			reference = question.Prompt
		}
		analysis, err := s.speech.Analyze(ctx, speech.AnalyzeRequest{
			ReferenceText: reference,
			AudioURL:      answer.AudioURL,
			AudioBase64:   answer.AudioBase64,
		})
		if err != nil {
			return record, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "speech analysis failed")
		}
		record.Score = analysis.Score
		record.Correct = analysis.Score >= settings.PassThreshold
		record.AnalysisPayload = analysis.Raw
		if record.Response == "" {
			record.Response = analysis.Transcript
		}

	default: // CUSTOM, READING, Q_AND_A grade against text answers
		correct := matchesAnswer(answer.Response, question, settings)
		record.Correct = correct
		if correct {
			record.Score = 1
		}
	}

	return record, nil
}

// matchesAnswer compares the normalized response to the question answer and
// any configured acceptable responses (keyed by question ID or position).
func matchesAnswer(response string, question models.Question, settings models.EvaluationSettings) bool {
	normalized := normalize(response)
	if normalized == "" {
		return false
	}
	if question.Answer != "" && normalized == normalize(question.Answer) {
		return true
	}
	for _, acceptable := range acceptableFor(question, settings.AcceptableResponses) {
		if normalized == normalize(acceptable) {
			return true
		}
	}
	return false
}

func acceptableFor(question models.Question, raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var byKey map[string][]string
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil
	}
	if responses, ok := byKey[question.ID]; ok {
		return responses
	}
	return byKey[strconv.Itoa(question.Position)]
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
}

func (s *ProgressService) writeAudit(ctx context.Context, actor Actor, assignmentID string, result *repository.SubmissionResult) {
	if s.audit == nil {
		return
	}
	values, err := json.Marshal(result.Status)
	if err != nil {
		values = nil
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionProgressSubmit,
		Resource:   "assignment",
		ResourceID: &assignmentID,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record submission audit log", zap.Error(err))
	}
}

func (s *ProgressService) invalidate(ctx context.Context, assignmentID, studentID string, classIDs []string) {
	if s.cache == nil {
		return
	}
	patterns := []string{
		"stats:assignment:" + assignmentID + "*",
		"stats:student:" + studentID + "*",
		"stats:school*",
	}
	for _, classID := range classIDs {
		patterns = append(patterns, "stats:class:"+classID+"*")
	}
	for _, pattern := range patterns {
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("failed to invalidate stats cache", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}
