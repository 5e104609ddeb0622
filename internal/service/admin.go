package service

import (
	"context"
	"errors"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/hybrid"
	"soapstock/backend/internal/migration"
)

var ErrMigrationUnavailable = errors.New("migration is not configured")

func (s *Service) SyncStatus(ctx context.Context) (domain.SyncStatus, error) {
	return s.storage.SyncStatus(ctx)
}

func (s *Service) ForceSync(ctx context.Context) (hybrid.SyncReport, error) {
	report, err := s.storage.ForceSync(ctx)
	if err != nil {
		return report, err
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"pending":   report.Pending,
	}), "manual sync finished")
	return report, nil
}

func (s *Service) RunMigration(ctx context.Context) (migration.Summary, error) {
	if s.migrator == nil {
		return migration.Summary{}, ErrMigrationUnavailable
	}
	return s.migrator.Run(ctx), nil
}

func (s *Service) MigrationStatus(ctx context.Context) (migration.Status, error) {
	if s.migrator == nil {
		return migration.Status{}, ErrMigrationUnavailable
	}
	return s.migrator.Status(ctx)
}

func (s *Service) Backup(ctx context.Context) (domain.Backup, error) {
	return s.storage.Backup(ctx)
}

func (s *Service) Restore(ctx context.Context, backup domain.Backup) error {
	if err := backup.Validate(); err != nil {
		return err
	}
	if backup.Version != domain.BackupVersion {
		return domain.Invalid("version", "unsupported backup version "+backup.Version)
	}
	if err := s.storage.Restore(ctx, backup); err != nil {
		return err
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"version":   backup.Version,
		"timestamp": backup.Timestamp,
	}), "backup restored")
	return nil
}
