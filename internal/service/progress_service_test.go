package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulink-app/assignment-api/internal/models"
	"github.com/edulink-app/assignment-api/internal/repository"
	appErrors "github.com/edulink-app/assignment-api/pkg/errors"
	"github.com/edulink-app/assignment-api/pkg/speech"
)

const (
	questionOneID = "11111111-1111-1111-1111-111111111111"
	questionTwoID = "22222222-2222-2222-2222-222222222222"
)

type mockScopedAssignmentRepo struct {
	detail   *models.AssignmentDetail
	inScope  bool
	classIDs []string
}

func (m *mockScopedAssignmentRepo) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	if m.detail == nil || m.detail.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.detail, nil
}

func (m *mockScopedAssignmentRepo) ScopeForStudent(ctx context.Context, assignmentID, studentID string) (bool, []string, error) {
	return m.inScope, m.classIDs, nil
}

type mockProgressRepo struct {
	result      *repository.SubmissionResult
	lastRecords []repository.SubmissionRecord
	status      *models.StudentAssignmentStatus
	statuses    []models.StudentAssignmentStatus
	rows        []models.StudentProgress
	lastFilter  models.ProgressFilter
}

func (m *mockProgressRepo) RecordSubmission(ctx context.Context, assignmentID, studentID string, records []repository.SubmissionRecord, classIDs []string) (*repository.SubmissionResult, error) {
	m.lastRecords = records
	return m.result, nil
}

func (m *mockProgressRepo) StatusFor(ctx context.Context, assignmentID, studentID string) (*models.StudentAssignmentStatus, error) {
	return m.status, nil
}

func (m *mockProgressRepo) StatusesFor(ctx context.Context, assignmentID string) ([]models.StudentAssignmentStatus, error) {
	return m.statuses, nil
}

func (m *mockProgressRepo) ListByAssignment(ctx context.Context, filter models.ProgressFilter) ([]models.StudentProgress, int, error) {
	m.lastFilter = filter
	return m.rows, len(m.rows), nil
}

type mockSpeechAnalyzer struct {
	result  *speech.AnalyzeResult
	lastReq speech.AnalyzeRequest
}

func (m *mockSpeechAnalyzer) Analyze(ctx context.Context, req speech.AnalyzeRequest) (*speech.AnalyzeResult, error) {
	m.lastReq = req
	return m.result, nil
}

type mockAuditor struct {
	logs []*models.AuditLog
}

func (m *mockAuditor) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type mockCacheInvalidator struct {
	patterns []string
}

func (m *mockCacheInvalidator) Invalidate(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func activeDetail(evaluation models.EvaluationSettings) *models.AssignmentDetail {
	return &models.AssignmentDetail{
		Assignment: models.Assignment{
			ID:         "a1",
			Topic:      "Irregular verbs",
			Type:       models.AssignmentTypeClass,
			CreatedBy:  "t1",
			Evaluation: evaluation,
			IsActive:   true,
		},
		Questions: []models.Question{
			{ID: questionOneID, AssignmentID: "a1", Position: 1, Prompt: "Past tense of go?", Answer: "went"},
			{ID: questionTwoID, AssignmentID: "a1", Position: 2, Prompt: "Past tense of eat?", Answer: "ate"},
		},
	}
}

func submissionResult() *repository.SubmissionResult {
	return &repository.SubmissionResult{
		Status: models.StudentAssignmentStatus{
			StudentID:         "s1",
			AssignmentID:      "a1",
			QuestionsAnswered: 2,
			CorrectAnswers:    1,
			TotalQuestions:    2,
			CompletionPercent: 100,
			Completed:         true,
		},
		Delta: models.StatsDelta{StudentID: "s1", QuestionsAnswered: 2, CorrectAnswers: 1, CompletedDelta: 1},
	}
}

func newProgressService(assignments *mockScopedAssignmentRepo, progress *mockProgressRepo, analyzer speechAnalyzer, audit *mockAuditor, cache *mockCacheInvalidator) *ProgressService {
	return NewProgressService(assignments, progress, analyzer, audit, cache, nil, validator.New(), zap.NewNop())
}

func TestSubmitGradesTextAnswers(t *testing.T) {
	assignments := &mockScopedAssignmentRepo{
		detail:   activeDetail(models.EvaluationSettings{Type: models.EvaluationCustom}),
		inScope:  true,
		classIDs: []string{"c1"},
	}
	progress := &mockProgressRepo{result: submissionResult()}
	audit := &mockAuditor{}
	cache := &mockCacheInvalidator{}
	svc := newProgressService(assignments, progress, nil, audit, cache)

	status, err := svc.Submit(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{
			{QuestionID: questionOneID, Response: "  WENT "},
			{QuestionID: questionTwoID, Response: "eated"},
		},
	})
	require.NoError(t, err)
	assert.True(t, status.Completed)

	require.Len(t, progress.lastRecords, 2)
	assert.True(t, progress.lastRecords[0].Correct)
	assert.Equal(t, 1.0, progress.lastRecords[0].Score)
	assert.False(t, progress.lastRecords[1].Correct)
	assert.Equal(t, 0.0, progress.lastRecords[1].Score)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionProgressSubmit, audit.logs[0].Action)

	assert.Contains(t, cache.patterns, "stats:assignment:a1*")
	assert.Contains(t, cache.patterns, "stats:student:s1*")
	assert.Contains(t, cache.patterns, "stats:class:c1*")
	assert.Contains(t, cache.patterns, "stats:school*")
}

func TestSubmitAcceptsConfiguredResponses(t *testing.T) {
	acceptable, err := json.Marshal(map[string][]string{"1": {"i went", "went"}})
	require.NoError(t, err)

	assignments := &mockScopedAssignmentRepo{
		detail: activeDetail(models.EvaluationSettings{
			Type:                models.EvaluationReading,
			AcceptableResponses: acceptable,
		}),
		inScope: true,
	}
	progress := &mockProgressRepo{result: submissionResult()}
	svc := newProgressService(assignments, progress, nil, &mockAuditor{}, &mockCacheInvalidator{})

	_, err = svc.Submit(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: questionOneID, Response: "I  Went"}},
	})
	require.NoError(t, err)
	require.Len(t, progress.lastRecords, 1)
	assert.True(t, progress.lastRecords[0].Correct)
}

func TestSubmitVideoCountsWatchingAsComplete(t *testing.T) {
	assignments := &mockScopedAssignmentRepo{
		detail:  activeDetail(models.EvaluationSettings{Type: models.EvaluationVideo}),
		inScope: true,
	}
	progress := &mockProgressRepo{result: submissionResult()}
	svc := newProgressService(assignments, progress, nil, &mockAuditor{}, &mockCacheInvalidator{})

	_, err := svc.Submit(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: questionOneID}},
	})
	require.NoError(t, err)
	require.Len(t, progress.lastRecords, 1)
	assert.True(t, progress.lastRecords[0].Correct)
	assert.Equal(t, 1.0, progress.lastRecords[0].Score)
}

func TestSubmitPronunciationUsesAnalyzerVerdict(t *testing.T) {
	assignments := &mockScopedAssignmentRepo{
		detail: activeDetail(models.EvaluationSettings{
			Type:          models.EvaluationPronunciation,
			PassThreshold: 0.7,
		}),
		inScope: true,
	}
	progress := &mockProgressRepo{result: submissionResult()}
	analyzer := &mockSpeechAnalyzer{result: &speech.AnalyzeResult{
		Score:      0.82,
		Transcript: "went",
		Passed:     true,
		Raw:        json.RawMessage(`{"score":0.82}`),
	}}
	svc := newProgressService(assignments, progress, analyzer, &mockAuditor{}, &mockCacheInvalidator{})

	_, err := svc.Submit(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: questionOneID, AudioURL: "https://cdn.example.com/a1.wav"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "went", analyzer.lastReq.ReferenceText)
	require.Len(t, progress.lastRecords, 1)
	assert.True(t, progress.lastRecords[0].Correct)
	assert.Equal(t, 0.82, progress.lastRecords[0].Score)
	assert.JSONEq(t, `{"score":0.82}`, string(progress.lastRecords[0].AnalysisPayload))
	assert.Equal(t, "went", progress.lastRecords[0].Response)
}

func TestSubmitPronunciationRequiresAudio(t *testing.T) {
	assignments := &mockScopedAssignmentRepo{
		detail: activeDetail(models.EvaluationSettings{
			Type:          models.EvaluationPronunciation,
			PassThreshold: 0.7,
		}),
		inScope: true,
	}
	svc := newProgressService(assignments, &mockProgressRepo{}, &mockSpeechAnalyzer{}, &mockAuditor{}, &mockCacheInvalidator{})

	_, err := svc.Submit(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: questionOneID, Response: "went"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsUnpublishedAssignment(t *testing.T) {
	detail := activeDetail(models.EvaluationSettings{Type: models.EvaluationCustom})
	detail.IsActive = false
	assignments := &mockScopedAssignmentRepo{detail: detail, inScope: true}
	svc := newProgressService(assignments, &mockProgressRepo{}, nil, &mockAuditor{}, &mockCacheInvalidator{})

	_, err := svc.Submit(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: questionOneID, Response: "went"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotPublished.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsPastDueUnlessLateAllowed(t *testing.T) {
	pastDue := time.Now().UTC().Add(-time.Hour)

	detail := activeDetail(models.EvaluationSettings{Type: models.EvaluationCustom})
	detail.DueAt = &pastDue
	assignments := &mockScopedAssignmentRepo{detail: detail, inScope: true}
	svc := newProgressService(assignments, &mockProgressRepo{}, nil, &mockAuditor{}, &mockCacheInvalidator{})

	_, err := svc.Submit(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: questionOneID, Response: "went"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPastDue.Code, appErrors.FromError(err).Code)

	lateDetail := activeDetail(models.EvaluationSettings{Type: models.EvaluationCustom, AllowLate: true})
	lateDetail.DueAt = &pastDue
	assignments.detail = lateDetail
	progress := &mockProgressRepo{result: submissionResult()}
	svc = newProgressService(assignments, progress, nil, &mockAuditor{}, &mockCacheInvalidator{})

	_, err = svc.Submit(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: questionOneID, Response: "went"}},
	})
	require.NoError(t, err)
}

func TestSubmitRejectsOutOfScopeStudent(t *testing.T) {
	assignments := &mockScopedAssignmentRepo{
		detail:  activeDetail(models.EvaluationSettings{Type: models.EvaluationCustom}),
		inScope: false,
	}
	svc := newProgressService(assignments, &mockProgressRepo{}, nil, &mockAuditor{}, &mockCacheInvalidator{})

	_, err := svc.Submit(context.Background(), Actor{UserID: "s9", Role: models.RoleStudent}, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: questionOneID, Response: "went"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOutOfScope.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsUnknownAndDuplicateQuestions(t *testing.T) {
	assignments := &mockScopedAssignmentRepo{
		detail:  activeDetail(models.EvaluationSettings{Type: models.EvaluationCustom}),
		inScope: true,
	}
	svc := newProgressService(assignments, &mockProgressRepo{}, nil, &mockAuditor{}, &mockCacheInvalidator{})
	actor := Actor{UserID: "s1", Role: models.RoleStudent}

	_, err := svc.Submit(context.Background(), actor, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{{QuestionID: "99999999-9999-9999-9999-999999999999", Response: "went"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Submit(context.Background(), actor, "a1", models.SubmitProgressRequest{
		Answers: []models.AnswerInput{
			{QuestionID: questionOneID, Response: "went"},
			{QuestionID: questionOneID, Response: "go"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStatusStudentCannotViewOthers(t *testing.T) {
	progress := &mockProgressRepo{status: &models.StudentAssignmentStatus{StudentID: "s1", AssignmentID: "a1"}}
	svc := newProgressService(&mockScopedAssignmentRepo{}, progress, nil, &mockAuditor{}, &mockCacheInvalidator{})

	_, err := svc.Status(context.Background(), Actor{UserID: "s2", Role: models.RoleStudent}, "a1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	status, err := svc.Status(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", status.StudentID)
}

func TestListProgressForcesStudentScope(t *testing.T) {
	progress := &mockProgressRepo{rows: []models.StudentProgress{{ID: "p1", StudentID: "s1"}}}
	svc := newProgressService(&mockScopedAssignmentRepo{}, progress, nil, &mockAuditor{}, &mockCacheInvalidator{})

	rows, total, err := svc.ListProgress(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, models.ProgressFilter{AssignmentID: "a1", StudentID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, rows, 1)
	assert.Equal(t, "s1", progress.lastFilter.StudentID)
}
