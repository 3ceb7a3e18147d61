package service

import (
	"context"
	"errors"
	"fmt"

	"feedsync/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

type SettingsService struct {
	settings  SettingsStore
	txManager TransactionManager
}

func NewSettingsService(settings SettingsStore, txManager TransactionManager) *SettingsService {
	return &SettingsService{settings: settings, txManager: txManager}
}

// SaveAll validates every setting before writing any, then writes them in
// one transaction.
func (s *SettingsService) SaveAll(ctx context.Context, settings []domain.Setting) error {
	for _, st := range settings {
		if err := domain.ValidateSetting(st.Key, st.Value); err != nil {
			return err
		}
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, st := range settings {
			if err := s.settings.Save(txCtx, st); err != nil {
				return fmt.Errorf("save setting %s: %w", st.Key, err)
			}
		}
		return nil
	})
}
