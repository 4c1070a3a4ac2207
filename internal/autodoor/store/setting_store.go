package store

import (
	"context"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

type SettingStore interface {
	GetSetting(ctx context.Context, key string) (types.Setting, error)
	ListSettings(ctx context.Context) ([]types.Setting, error)
	// PutSetting updates an existing row; unknown keys return ErrNotFound.
	PutSetting(ctx context.Context, s types.Setting) error
}
