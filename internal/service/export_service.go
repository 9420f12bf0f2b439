package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulink-app/assignment-api/internal/models"
	appErrors "github.com/edulink-app/assignment-api/pkg/errors"
	"github.com/edulink-app/assignment-api/pkg/export"
	"github.com/edulink-app/assignment-api/pkg/jobs"
	"github.com/edulink-app/assignment-api/pkg/storage"
)

type exportStatsRepository interface {
	ListClassAssignmentStats(ctx context.Context, classID string) ([]models.ClassAssignmentStats, error)
	GetClassStats(ctx context.Context, classID string) (*models.ClassStats, error)
}

type exportClassRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportService generates class completion reports asynchronously on the jobs
// queue. Job status lives in memory alongside the queue; a restart drops both,
// so clients re-request rather than resume.
type ExportService struct {
	stats     exportStatsRepository
	classes   exportClassRepository
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig

	mu       sync.RWMutex
	jobsByID map[string]*models.ExportJob

	cleanupCancel context.CancelFunc
	cleanupWG     sync.WaitGroup
}

// NewExportService constructs an ExportService. Call Start before use.
func NewExportService(stats exportStatsRepository, classes exportClassRepository, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger, queueCfg jobs.QueueConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	s := &ExportService{
		stats:     stats,
		classes:   classes,
		storage:   store,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		jobsByID:  make(map[string]*models.ExportJob),
	}
	if queueCfg.Logger == nil {
		queueCfg.Logger = logger
	}
	s.queue = jobs.NewQueue("class-report", s.process, queueCfg)
	return s
}

// Start launches the queue workers and the cleanup loop.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)

	ctx, s.cleanupCancel = context.WithCancel(ctx)
	s.cleanupWG.Add(1)
	go func() {
		defer s.cleanupWG.Done()
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

// Stop shuts down workers and the cleanup loop.
func (s *ExportService) Stop() {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	s.cleanupWG.Wait()
	s.queue.Stop()
}

// RequestClassReport enqueues generation of a class completion report.
func (s *ExportService) RequestClassReport(ctx context.Context, actor Actor, req models.ClassReportRequest) (*models.ExportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	// Fail fast on unknown classes instead of failing inside the worker.
	if _, err := s.classes.FindDetailByID(ctx, req.ClassID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	job := &models.ExportJob{
		ID:          uuid.NewString(),
		ClassID:     req.ClassID,
		Format:      strings.ToLower(req.Format),
		Status:      models.ExportStatusPending,
		RequestedBy: actor.UserID,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobsByID[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "class-report", Payload: job.ID}); err != nil {
		s.setFailed(job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}
	return s.snapshot(job.ID), nil
}

// Get returns job status. Requesters see their own jobs; admins see all.
func (s *ExportService) Get(ctx context.Context, actor Actor, id string) (*models.ExportJob, error) {
	job := s.snapshot(id)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if actor.Role != models.RoleAdmin && job.RequestedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export belongs to another user")
	}
	return job, nil
}

// OpenByToken validates a signed download token and opens the stored file.
func (s *ExportService) OpenByToken(token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	job := s.snapshot(jobID)
	if job == nil || job.Status != models.ExportStatusCompleted {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export is not available")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return file, fmt.Sprintf("class_report_%s.%s", job.ClassID, job.Format), nil
}

// process runs on the queue workers.
func (s *ExportService) process(ctx context.Context, queued jobs.Job) error {
	jobID, _ := queued.Payload.(string)
	job := s.snapshot(jobID)
	if job == nil {
		return fmt.Errorf("export job %s not found", jobID)
	}
	s.setStatus(jobID, models.ExportStatusRunning)

	dataset, title, err := s.buildDataset(ctx, job.ClassID)
	if err != nil {
		s.setFailed(jobID, err)
		return err
	}

	var payload []byte
	switch job.Format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		s.setFailed(jobID, err)
		return err
	}

	filename := fmt.Sprintf("class_report_%s_%s.%s", job.ClassID, time.Now().UTC().Format("20060102_150405"), job.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.setFailed(jobID, err)
		return err
	}

	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		s.setFailed(jobID, err)
		return err
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if stored, ok := s.jobsByID[jobID]; ok {
		stored.Status = models.ExportStatusCompleted
		stored.Token = token
		stored.DownloadURL = fmt.Sprintf("%s/exports/download/%s", prefix, token)
		stored.ExpiresAt = &expiresAt
		stored.CompletedAt = &now
	}
	s.mu.Unlock()

	s.logger.Info("class report generated",
		zap.String("job_id", jobID), zap.String("class_id", job.ClassID), zap.String("format", job.Format))
	return nil
}

func (s *ExportService) buildDataset(ctx context.Context, classID string) (export.Dataset, string, error) {
	detail, err := s.classes.FindDetailByID(ctx, classID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load class: %w", err)
	}
	rollup, err := s.stats.GetClassStats(ctx, classID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load class rollup: %w", err)
	}
	rows, err := s.stats.ListClassAssignmentStats(ctx, classID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load class assignment stats: %w", err)
	}

	dataRows := make([]map[string]string, 0, len(rows)+1)
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Assignment": row.Topic,
			"Completed":  fmt.Sprintf("%d", row.CompletedStudentsCount),
			"In Scope":   fmt.Sprintf("%d", row.TotalStudentsInScope),
			"Rate (%)":   fmt.Sprintf("%.1f", row.CompletionRate*100),
		})
	}
	dataRows = append(dataRows, map[string]string{
		"Assignment": "TOTAL",
		"Completed":  fmt.Sprintf("%d", rollup.CompletedAssignments),
		"In Scope":   fmt.Sprintf("%d", detail.StudentCount),
		"Rate (%)":   "",
	})

	dataset := export.Dataset{
		Headers: []string{"Assignment", "Completed", "In Scope", "Rate (%)"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Completion Report %s", detail.Name)
	return dataset, title, nil
}

func (s *ExportService) snapshot(id string) *models.ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobsByID[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

func (s *ExportService) setStatus(id string, status models.ExportStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobsByID[id]; ok {
		job.Status = status
	}
}

func (s *ExportService) setFailed(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobsByID[id]; ok {
		job.Status = models.ExportStatusFailed
		job.Error = err.Error()
	}
}
