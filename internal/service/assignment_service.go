package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edulink-app/assignment-api/internal/models"
	appErrors "github.com/edulink-app/assignment-api/pkg/errors"
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
	Create(ctx context.Context, detail *models.AssignmentDetail) error
	Update(ctx context.Context, detail *models.AssignmentDetail) error
	Delete(ctx context.Context, id string) error
	HasSubmissions(ctx context.Context, id string) (bool, error)
}

type assignmentAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type assignmentCache interface {
	Invalidate(ctx context.Context, pattern string) error
}

// Actor identifies the authenticated caller for authorization decisions.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// AssignmentService implements assignment CRUD and the variant creators.
type AssignmentService struct {
	repo      assignmentRepository
	audit     assignmentAuditor
	cache     assignmentCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(repo assignmentRepository, audit assignmentAuditor, cache assignmentCache, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{repo: repo, audit: audit, cache: cache, validator: validate, logger: logger}
}

// List returns assignments visible to the actor. Students only see active
// assignments in their scope; teachers see their own unless admin.
func (s *AssignmentService) List(ctx context.Context, actor Actor, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.UserID
		active := true
		filter.Active = &active
	case models.RoleTeacher:
		if filter.CreatedBy == "" {
			filter.CreatedBy = actor.UserID
		}
	}

	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	if actor.Role == models.RoleStudent {
		for i := range assignments {
			redactForStudent(&assignments[i])
		}
	}
	return assignments, total, nil
}

// Get returns one assignment with questions and scope links.
func (s *AssignmentService) Get(ctx context.Context, actor Actor, id string) (*models.AssignmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if actor.Role == models.RoleStudent {
		redactForStudent(&detail.Assignment)
		for i := range detail.Questions {
			detail.Questions[i].Answer = ""
		}
	}
	return detail, nil
}

// Create builds a new assignment with its questions and scope links.
func (s *AssignmentService) Create(ctx context.Context, actor Actor, req models.CreateAssignmentRequest) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := validatePublishState(req.IsActive, req.ScheduledPublishAt); err != nil {
		return nil, err
	}
	if err := validateScope(req.Type, req.ClassIDs, req.StudentIDs); err != nil {
		return nil, err
	}

	detail := &models.AssignmentDetail{
		Assignment: models.Assignment{
			Topic:       req.Topic,
			Description: req.Description,
			Type:        req.Type,
			CreatedBy:   actor.UserID,
			Evaluation: models.EvaluationSettings{
				Type:                req.Evaluation.Type,
				Rules:               req.Evaluation.Rules,
				AcceptableResponses: req.Evaluation.AcceptableResponses,
				AllowLate:           req.Evaluation.AllowLate,
				PassThreshold:       req.Evaluation.PassThreshold,
			},
			ScheduledPublishAt: req.ScheduledPublishAt,
			DueAt:              req.DueAt,
			IsActive:           req.IsActive,
		},
		ClassIDs:   req.ClassIDs,
		StudentIDs: req.StudentIDs,
	}
	for _, q := range req.Questions {
		detail.Questions = append(detail.Questions, models.Question{Prompt: q.Prompt, Answer: q.Answer})
	}

	if err := s.repo.Create(ctx, detail); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.writeAudit(ctx, actor, models.AuditActionAssignmentCreate, detail.ID, detail)
	s.invalidateStats(ctx, detail)
	return detail, nil
}

// Variant presets seed the evaluation settings so the client only supplies
// topic, scope and questions.

// CreateReading creates a reading assignment graded against acceptable responses.
func (s *AssignmentService) CreateReading(ctx context.Context, actor Actor, req models.VariantAssignmentRequest) (*models.AssignmentDetail, error) {
	return s.createVariant(ctx, actor, req, models.EvaluationReading, json.RawMessage(`{"mode":"reading","match":"normalized"}`))
}

// CreateVideo creates a video assignment completed by watching.
func (s *AssignmentService) CreateVideo(ctx context.Context, actor Actor, req models.VariantAssignmentRequest) (*models.AssignmentDetail, error) {
	return s.createVariant(ctx, actor, req, models.EvaluationVideo, json.RawMessage(`{"mode":"video","complete_on_watch":true}`))
}

// CreatePronunciation creates a pronunciation assignment graded by the
// external speech analyzer.
func (s *AssignmentService) CreatePronunciation(ctx context.Context, actor Actor, req models.VariantAssignmentRequest) (*models.AssignmentDetail, error) {
	return s.createVariant(ctx, actor, req, models.EvaluationPronunciation, json.RawMessage(`{"mode":"pronunciation","analyzer":"speech-service"}`))
}

// CreateIELTS creates a question-and-answer assignment in the IELTS namespace.
func (s *AssignmentService) CreateIELTS(ctx context.Context, actor Actor, req models.VariantAssignmentRequest) (*models.AssignmentDetail, error) {
	return s.createVariant(ctx, actor, req, models.EvaluationQAndA, json.RawMessage(`{"mode":"ielts","band_scale":9}`))
}

// ListIELTS returns assignments in the IELTS namespace.
func (s *AssignmentService) ListIELTS(ctx context.Context, actor Actor, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	filter.EvaluationType = string(models.EvaluationQAndA)
	return s.List(ctx, actor, filter)
}

func (s *AssignmentService) createVariant(ctx context.Context, actor Actor, req models.VariantAssignmentRequest, evalType models.EvaluationType, rules json.RawMessage) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	threshold := 0.7
	if req.PassThreshold != nil {
		threshold = *req.PassThreshold
	}

	// Answers double as the acceptable responses for text-graded variants.
	var acceptable json.RawMessage
	if evalType == models.EvaluationReading || evalType == models.EvaluationQAndA {
		responses := make(map[string][]string, len(req.Questions))
		for i, q := range req.Questions {
			if q.Answer != "" {
				responses[fmt.Sprintf("%d", i+1)] = []string{q.Answer}
			}
		}
		encoded, err := json.Marshal(responses)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build acceptable responses")
		}
		acceptable = encoded
	}

	full := models.CreateAssignmentRequest{
		Topic:       req.Topic,
		Description: req.Description,
		Type:        req.Type,
		Evaluation: models.EvaluationInput{
			Type:                evalType,
			Rules:               rules,
			AcceptableResponses: acceptable,
			AllowLate:           req.AllowLate,
			PassThreshold:       threshold,
		},
		ScheduledPublishAt: req.ScheduledPublishAt,
		DueAt:              req.DueAt,
		IsActive:           req.IsActive,
		ClassIDs:           req.ClassIDs,
		StudentIDs:         req.StudentIDs,
		Questions:          req.Questions,
	}
	return s.Create(ctx, actor, full)
}

// Update replaces the assignment fields and scope. Evaluation settings are
// frozen once any student has submitted.
func (s *AssignmentService) Update(ctx context.Context, actor Actor, id string, req models.UpdateAssignmentRequest) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := validatePublishState(req.IsActive, req.ScheduledPublishAt); err != nil {
		return nil, err
	}
	if err := validateScope(req.Type, req.ClassIDs, req.StudentIDs); err != nil {
		return nil, err
	}

	existing, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	hasSubmissions, err := s.repo.HasSubmissions(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submissions")
	}
	if hasSubmissions && !evaluationEqual(existing.Evaluation, req.Evaluation) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "evaluation settings cannot change after submissions exist")
	}

	detail := &models.AssignmentDetail{
		Assignment: models.Assignment{
			ID:          id,
			Topic:       req.Topic,
			Description: req.Description,
			Type:        req.Type,
			CreatedBy:   existing.CreatedBy,
			Evaluation: models.EvaluationSettings{
				Type:                req.Evaluation.Type,
				Rules:               req.Evaluation.Rules,
				AcceptableResponses: req.Evaluation.AcceptableResponses,
				AllowLate:           req.Evaluation.AllowLate,
				PassThreshold:       req.Evaluation.PassThreshold,
			},
			ScheduledPublishAt: req.ScheduledPublishAt,
			DueAt:              req.DueAt,
			IsActive:           req.IsActive,
		},
		ClassIDs:   req.ClassIDs,
		StudentIDs: req.StudentIDs,
	}

	if err := s.repo.Update(ctx, detail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}

	s.writeAudit(ctx, actor, models.AuditActionAssignmentUpdate, id, detail)
	s.invalidateStats(ctx, detail)

	return s.repo.FindDetailByID(ctx, id)
}

// Delete removes an assignment that has no submissions yet.
func (s *AssignmentService) Delete(ctx context.Context, actor Actor, id string) error {
	existing, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return err
	}

	hasSubmissions, err := s.repo.HasSubmissions(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submissions")
	}
	if hasSubmissions {
		return appErrors.Clone(appErrors.ErrConflict, "assignment with submissions cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}

	s.writeAudit(ctx, actor, models.AuditActionAssignmentDelete, id, existing)
	return nil
}

func (s *AssignmentService) loadOwned(ctx context.Context, actor Actor, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if actor.Role != models.RoleAdmin && assignment.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another teacher")
	}
	return assignment, nil
}

func (s *AssignmentService) writeAudit(ctx context.Context, actor Actor, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, err := json.Marshal(payload)
	if err != nil {
		values = nil
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "assignment",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record assignment audit log", zap.Error(err))
	}
}

func (s *AssignmentService) invalidateStats(ctx context.Context, detail *models.AssignmentDetail) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "stats:assignment:"+detail.ID+"*"); err != nil {
		s.logger.Warn("failed to invalidate assignment stats cache", zap.Error(err))
	}
	for _, classID := range detail.ClassIDs {
		if err := s.cache.Invalidate(ctx, "stats:class:"+classID+"*"); err != nil {
			s.logger.Warn("failed to invalidate class stats cache", zap.Error(err))
		}
	}
}

// validatePublishState rejects payloads that would activate an assignment
// whose publish time is still in the future.
func validatePublishState(isActive bool, scheduledAt *time.Time) error {
	if isActive && scheduledAt != nil && scheduledAt.After(time.Now().UTC()) {
		return appErrors.Clone(appErrors.ErrValidation, "assignment cannot be active before its scheduled publish time")
	}
	return nil
}

func validateScope(assignmentType models.AssignmentType, classIDs, studentIDs []string) error {
	switch assignmentType {
	case models.AssignmentTypeClass:
		if len(classIDs) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "class assignments require at least one class")
		}
	case models.AssignmentTypeIndividual:
		if len(studentIDs) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "individual assignments require at least one student")
		}
	}
	return nil
}

func evaluationEqual(existing models.EvaluationSettings, req models.EvaluationInput) bool {
	return existing.Type == req.Type &&
		string(existing.Rules) == string(req.Rules) &&
		string(existing.AcceptableResponses) == string(req.AcceptableResponses) &&
		existing.AllowLate == req.AllowLate &&
		existing.PassThreshold == req.PassThreshold
}

func redactForStudent(a *models.Assignment) {
	a.Evaluation.AcceptableResponses = nil
	a.Evaluation.Rules = nil
}
