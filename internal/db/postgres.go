// Package db wires the durable store: Postgres via GORM, with the schema
// declared in internal/domain. Migration history tooling is out of scope
// (spec.md §1); this package only establishes the connection and ensures the
// declared schema exists via GORM auto-migration.
package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clipforge/pipeline/internal/config"
	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(cfg config.Config, baseLog *logger.Logger) (*Service, error) {
	serviceLog := baseLog.With("service", "PostgresService")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresName,
	)

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &Service{db: conn, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

// AutoMigrateAll ensures every declared entity's table exists with the indexes
// the dispatcher and control-scan queries depend on (spec.md §6).
func (s *Service) AutoMigrateAll() error {
	if err := s.db.AutoMigrate(
		&domain.Project{},
		&domain.Candidate{},
		&domain.Preset{},
		&domain.PresetStep{},
		&domain.PublishTask{},
		&domain.StepResult{},
		&domain.ExportProfile{},
		&domain.PublishedVideoMetric{},
	); err != nil {
		return err
	}
	return s.ensureIndexes()
}

func (s *Service) ensureIndexes() error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_publish_task_dispatch ON publish_tasks (status, priority DESC, created_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_publish_task_pause ON publish_tasks (status, pause_requested_at)`,
		`CREATE INDEX IF NOT EXISTS idx_publish_task_cancel ON publish_tasks (status, cancel_requested_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_candidate_platform_video ON candidates (project_id, platform, platform_video_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_step_result_task_step ON step_results (task_id, step_index) WHERE status = 'ok'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_published_metric_snapshot ON published_video_metrics (platform, external_id, snapshot_at)`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
