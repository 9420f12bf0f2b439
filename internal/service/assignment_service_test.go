package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulink-app/assignment-api/internal/models"
	appErrors "github.com/edulink-app/assignment-api/pkg/errors"
)

type mockAssignmentRepo struct {
	assignments   map[string]*models.AssignmentDetail
	submissions   map[string]bool
	lastFilter    models.AssignmentFilter
	createdDetail *models.AssignmentDetail
	updatedDetail *models.AssignmentDetail
	deletedID     string
}

func (m *mockAssignmentRepo) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	m.lastFilter = filter
	var result []models.Assignment
	for _, d := range m.assignments {
		result = append(result, d.Assignment)
	}
	return result, len(result), nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if d, ok := m.assignments[id]; ok {
		assignment := d.Assignment
		return &assignment, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	if d, ok := m.assignments[id]; ok {
		detail := *d
		detail.Questions = append([]models.Question(nil), d.Questions...)
		return &detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) Create(ctx context.Context, detail *models.AssignmentDetail) error {
	detail.ID = uuid.NewString()
	m.createdDetail = detail
	if m.assignments == nil {
		m.assignments = make(map[string]*models.AssignmentDetail)
	}
	m.assignments[detail.ID] = detail
	return nil
}

func (m *mockAssignmentRepo) Update(ctx context.Context, detail *models.AssignmentDetail) error {
	if _, ok := m.assignments[detail.ID]; !ok {
		return sql.ErrNoRows
	}
	m.updatedDetail = detail
	m.assignments[detail.ID] = detail
	return nil
}

func (m *mockAssignmentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.assignments[id]; !ok {
		return sql.ErrNoRows
	}
	m.deletedID = id
	delete(m.assignments, id)
	return nil
}

func (m *mockAssignmentRepo) HasSubmissions(ctx context.Context, id string) (bool, error) {
	return m.submissions[id], nil
}

func newAssignmentService(repo *mockAssignmentRepo, audit *mockAuditor, cache *mockCacheInvalidator) *AssignmentService {
	return NewAssignmentService(repo, audit, cache, validator.New(), zap.NewNop())
}

func createRequest() models.CreateAssignmentRequest {
	return models.CreateAssignmentRequest{
		Topic: "Unit 4 vocabulary",
		Type:  models.AssignmentTypeClass,
		Evaluation: models.EvaluationInput{
			Type:          models.EvaluationCustom,
			PassThreshold: 0.7,
		},
		IsActive:  true,
		ClassIDs:  []string{uuid.NewString()},
		Questions: []models.QuestionInput{{Prompt: "Translate: apple", Answer: "apel"}},
	}
}

func TestCreateAssignmentWritesAuditAndInvalidatesCache(t *testing.T) {
	repo := &mockAssignmentRepo{}
	audit := &mockAuditor{}
	cache := &mockCacheInvalidator{}
	svc := newAssignmentService(repo, audit, cache)

	req := createRequest()
	detail, err := svc.Create(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, req)
	require.NoError(t, err)
	assert.NotEmpty(t, detail.ID)
	assert.Equal(t, "t1", detail.CreatedBy)
	require.Len(t, detail.Questions, 1)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionAssignmentCreate, audit.logs[0].Action)
	assert.Contains(t, cache.patterns, "stats:assignment:"+detail.ID+"*")
	assert.Contains(t, cache.patterns, "stats:class:"+req.ClassIDs[0]+"*")
}

func TestCreateAssignmentRejectsActiveBeforePublishTime(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockAuditor{}, &mockCacheInvalidator{})

	future := time.Now().UTC().Add(24 * time.Hour)
	req := createRequest()
	req.ScheduledPublishAt = &future

	_, err := svc.Create(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateAssignmentRequiresScope(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockAuditor{}, &mockCacheInvalidator{})

	req := createRequest()
	req.ClassIDs = nil
	_, err := svc.Create(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = createRequest()
	req.Type = models.AssignmentTypeIndividual
	req.ClassIDs = nil
	_, err = svc.Create(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateReadingSeedsEvaluationPreset(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})

	detail, err := svc.CreateReading(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, models.VariantAssignmentRequest{
		Topic:    "Reading passage 3",
		Type:     models.AssignmentTypeClass,
		IsActive: true,
		ClassIDs: []string{uuid.NewString()},
		Questions: []models.QuestionInput{
			{Prompt: "Main idea?", Answer: "migration"},
			{Prompt: "Author's tone?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationReading, detail.Evaluation.Type)
	assert.Equal(t, 0.7, detail.Evaluation.PassThreshold)
	assert.JSONEq(t, `{"mode":"reading","match":"normalized"}`, string(detail.Evaluation.Rules))
	// Only answered questions become acceptable responses, keyed by position.
	assert.JSONEq(t, `{"1":["migration"]}`, string(detail.Evaluation.AcceptableResponses))
}

func TestCreatePronunciationHonorsCustomThreshold(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})

	threshold := 0.85
	detail, err := svc.CreatePronunciation(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, models.VariantAssignmentRequest{
		Topic:         "Minimal pairs",
		Type:          models.AssignmentTypeClass,
		IsActive:      true,
		PassThreshold: &threshold,
		ClassIDs:      []string{uuid.NewString()},
		Questions:     []models.QuestionInput{{Prompt: "Say: ship", Answer: "ship"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationPronunciation, detail.Evaluation.Type)
	assert.Equal(t, 0.85, detail.Evaluation.PassThreshold)
	assert.Nil(t, detail.Evaluation.AcceptableResponses)
}

func TestCreateIELTSUsesQAndAEvaluation(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})

	detail, err := svc.CreateIELTS(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, models.VariantAssignmentRequest{
		Topic:      "IELTS speaking part 2",
		Type:       models.AssignmentTypeIndividual,
		IsActive:   true,
		StudentIDs: []string{uuid.NewString()},
		Questions:  []models.QuestionInput{{Prompt: "Describe a journey", Answer: "model answer"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationQAndA, detail.Evaluation.Type)
}

func TestListIELTSFiltersByEvaluationType(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})

	_, _, err := svc.ListIELTS(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, models.AssignmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, string(models.EvaluationQAndA), repo.lastFilter.EvaluationType)
	assert.Equal(t, "t1", repo.lastFilter.CreatedBy)
}

func TestListForcesStudentScopeAndRedacts(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]*models.AssignmentDetail{
		"a1": {Assignment: models.Assignment{
			ID:       "a1",
			IsActive: true,
			Evaluation: models.EvaluationSettings{
				Type:                models.EvaluationReading,
				Rules:               []byte(`{"mode":"reading"}`),
				AcceptableResponses: []byte(`{"1":["went"]}`),
			},
		}},
	}}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})

	assignments, total, err := svc.List(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, models.AssignmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "s1", repo.lastFilter.StudentID)
	require.NotNil(t, repo.lastFilter.Active)
	assert.True(t, *repo.lastFilter.Active)
	assert.Nil(t, assignments[0].Evaluation.Rules)
	assert.Nil(t, assignments[0].Evaluation.AcceptableResponses)
}

func TestGetRedactsAnswersForStudents(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]*models.AssignmentDetail{
		"a1": {
			Assignment: models.Assignment{ID: "a1", IsActive: true, Evaluation: models.EvaluationSettings{
				Type:                models.EvaluationCustom,
				AcceptableResponses: []byte(`{"1":["went"]}`),
			}},
			Questions: []models.Question{{ID: "q1", Prompt: "Past tense of go?", Answer: "went"}},
		},
	}}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})

	detail, err := svc.Get(context.Background(), Actor{UserID: "s1", Role: models.RoleStudent}, "a1")
	require.NoError(t, err)
	assert.Empty(t, detail.Questions[0].Answer)
	assert.Nil(t, detail.Evaluation.AcceptableResponses)

	detail, err = svc.Get(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, "a1")
	require.NoError(t, err)
	assert.Equal(t, "went", detail.Questions[0].Answer)
}

func TestUpdateFreezesEvaluationAfterSubmissions(t *testing.T) {
	classID := uuid.NewString()
	repo := &mockAssignmentRepo{
		assignments: map[string]*models.AssignmentDetail{
			"a1": {Assignment: models.Assignment{
				ID:        "a1",
				Topic:     "Unit 4 vocabulary",
				Type:      models.AssignmentTypeClass,
				CreatedBy: "t1",
				Evaluation: models.EvaluationSettings{
					Type:          models.EvaluationCustom,
					PassThreshold: 0.7,
				},
			}},
		},
		submissions: map[string]bool{"a1": true},
	}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})
	actor := Actor{UserID: "t1", Role: models.RoleTeacher}

	req := models.UpdateAssignmentRequest{
		Topic:      "Unit 4 vocabulary (revised)",
		Type:       models.AssignmentTypeClass,
		Evaluation: models.EvaluationInput{Type: models.EvaluationReading, PassThreshold: 0.7},
		ClassIDs:   []string{classID},
	}
	_, err := svc.Update(context.Background(), actor, "a1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// Unchanged evaluation settings stay editable.
	req.Evaluation = models.EvaluationInput{Type: models.EvaluationCustom, PassThreshold: 0.7}
	detail, err := svc.Update(context.Background(), actor, "a1", req)
	require.NoError(t, err)
	assert.Equal(t, "Unit 4 vocabulary (revised)", detail.Topic)
}

func TestUpdateRejectsForeignAssignment(t *testing.T) {
	repo := &mockAssignmentRepo{
		assignments: map[string]*models.AssignmentDetail{
			"a1": {Assignment: models.Assignment{ID: "a1", Topic: "Topic", Type: models.AssignmentTypeClass, CreatedBy: "t1"}},
		},
	}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})

	req := models.UpdateAssignmentRequest{
		Topic:      "Hijacked",
		Type:       models.AssignmentTypeClass,
		Evaluation: models.EvaluationInput{Type: models.EvaluationCustom, PassThreshold: 0.7},
		ClassIDs:   []string{uuid.NewString()},
	}
	_, err := svc.Update(context.Background(), Actor{UserID: "t2", Role: models.RoleTeacher}, "a1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Admins bypass the ownership check.
	_, err = svc.Update(context.Background(), Actor{UserID: "admin", Role: models.RoleAdmin}, "a1", req)
	require.NoError(t, err)
}

func TestDeleteBlockedBySubmissions(t *testing.T) {
	repo := &mockAssignmentRepo{
		assignments: map[string]*models.AssignmentDetail{
			"a1": {Assignment: models.Assignment{ID: "a1", CreatedBy: "t1"}},
		},
		submissions: map[string]bool{"a1": true},
	}
	svc := newAssignmentService(repo, &mockAuditor{}, &mockCacheInvalidator{})

	err := svc.Delete(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, "a1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	repo.submissions["a1"] = false
	err = svc.Delete(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", repo.deletedID)
}

func TestDeleteMissingAssignment(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentRepo{}, &mockAuditor{}, &mockCacheInvalidator{})

	err := svc.Delete(context.Background(), Actor{UserID: "t1", Role: models.RoleTeacher}, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
