package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/internal/repository"
	"github.com/noah-isme/lesson-reflection-api/pkg/jobs"
	"github.com/noah-isme/lesson-reflection-api/pkg/seed"
)

const bootstrapTaskName = "master-data-resync"

type importStore interface {
	Import(ctx context.Context, batch repository.ImportBatch) (repository.ImportStats, error)
}

// SchemaFunc prepares the database before the first import.
type SchemaFunc func(ctx context.Context) error

// BootstrapConfig names the bulk source and the password given to teachers listed without one.
type BootstrapConfig struct {
	Source          string
	DefaultPassword string
}

// BootstrapService reconciles the bulk master data source into the live store, inserting only
// records whose id is not present yet.
type BootstrapService struct {
	cfg    BootstrapConfig
	store  importStore
	schema SchemaFunc
	logger *zap.Logger
	now    func() time.Time
	hash   func(string) (string, error)
}

// NewBootstrapService constructs a BootstrapService. schema may be nil when the database is
// managed elsewhere.
func NewBootstrapService(cfg BootstrapConfig, store importStore, schema SchemaFunc, logger *zap.Logger) *BootstrapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BootstrapService{
		cfg:    cfg,
		store:  store,
		schema: schema,
		logger: logger,
		now:    time.Now,
		hash:   HashPassword,
	}
}

// Run ensures the schema and imports the configured source.
func (s *BootstrapService) Run(ctx context.Context) (repository.ImportStats, error) {
	if s.schema != nil {
		if err := s.schema(ctx); err != nil {
			return repository.ImportStats{}, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return s.Import(ctx, s.cfg.Source)
}

// Import loads source and inserts what is missing. An empty source is a no-op.
func (s *BootstrapService) Import(ctx context.Context, source string) (repository.ImportStats, error) {
	if strings.TrimSpace(source) == "" {
		s.logger.Info("no bootstrap source configured")
		return repository.ImportStats{}, nil
	}
	ds, err := seed.Load(source)
	if err != nil {
		return repository.ImportStats{}, fmt.Errorf("load bootstrap source: %w", err)
	}
	batch, err := s.buildBatch(ds)
	if err != nil {
		return repository.ImportStats{}, err
	}
	stats, err := s.store.Import(ctx, batch)
	if err != nil {
		return stats, err
	}
	s.logger.Info("master data reconciled",
		zap.String("source", source),
		zap.Int("teachers", stats.Teachers),
		zap.Int("students", stats.Students),
		zap.Int("guardians", stats.Guardians),
		zap.Int("links", stats.Links))
	return stats, nil
}

// Schedule re-runs the import on a cron spec. An empty spec registers nothing.
func (s *BootstrapService) Schedule(scheduler *jobs.Scheduler, spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	return scheduler.Register(bootstrapTaskName, spec, func(ctx context.Context) error {
		_, err := s.Import(ctx, s.cfg.Source)
		return err
	})
}

func (s *BootstrapService) buildBatch(ds *seed.Dataset) (repository.ImportBatch, error) {
	now := s.now().UTC()
	batch := repository.ImportBatch{}

	var defaultHash string
	for _, t := range ds.Teachers {
		hash := ""
		switch {
		case t.Password != "":
			h, err := s.hash(t.Password)
			if err != nil {
				return batch, fmt.Errorf("hash password of teacher %s: %w", t.ID, err)
			}
			hash = h
		case s.cfg.DefaultPassword != "":
			if defaultHash == "" {
				h, err := s.hash(s.cfg.DefaultPassword)
				if err != nil {
					return batch, fmt.Errorf("hash default password: %w", err)
				}
				defaultHash = h
			}
			hash = defaultHash
		}
		batch.Teachers = append(batch.Teachers, models.Teacher{
			ID:           strings.TrimSpace(t.ID),
			Name:         strings.TrimSpace(t.Name),
			Subject:      strings.TrimSpace(t.Subject),
			Email:        strings.TrimSpace(t.Email),
			EmployeeCode: strings.TrimSpace(t.EmployeeCode),
			PasswordHash: hash,
			CreatedAt:    now,
		})
	}

	for _, st := range ds.Students {
		student := models.Student{
			ID:            strings.TrimSpace(st.ID),
			Name:          strings.TrimSpace(st.Name),
			Grade:         strings.TrimSpace(st.Grade),
			Memo:          st.Memo,
			DriveParentID: strings.TrimSpace(st.DriveParentID),
			CreatedAt:     now,
		}
		if folder := strings.TrimSpace(st.DriveFolderID); folder != "" {
			student.FolderID = &folder
		}
		batch.Students = append(batch.Students, student)
	}

	for _, g := range ds.Guardians {
		batch.Guardians = append(batch.Guardians, models.Guardian{
			ID:           strings.TrimSpace(g.ID),
			Name:         strings.TrimSpace(g.Name),
			Relationship: strings.TrimSpace(g.Relationship),
			Email:        strings.TrimSpace(g.Email),
			CreatedAt:    now,
		})
	}

	for _, link := range ds.Links {
		seen := make(map[string]bool, len(link.GuardianIDs))
		position := 0
		for _, guardianID := range link.GuardianIDs {
			guardianID = strings.TrimSpace(guardianID)
			if guardianID == "" || seen[guardianID] {
				continue
			}
			seen[guardianID] = true
			batch.Links = append(batch.Links, models.StudentGuardian{
				StudentID:  strings.TrimSpace(link.StudentID),
				GuardianID: guardianID,
				Position:   position,
			})
			position++
		}
	}

	return batch, nil
}
