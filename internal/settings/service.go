package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Service reads platform settings. All getters are total: failure modes fall
// back to the supplied default and are only surfaced as debug logs.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("settings"),
	}
}

// GetString returns the raw value for key, or fallback when absent or the
// store is unreachable.
func (s *Service) GetString(ctx context.Context, key, fallback string) string {
	if s == nil || s.db == nil {
		return fallback
	}
	var row Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Debug("setting lookup failed", zap.String("key", key), zap.Error(err))
		}
		return fallback
	}
	value := strings.TrimSpace(row.Value)
	if value == "" {
		return fallback
	}
	return value
}

// GetInt parses the value as an integer.
func (s *Service) GetInt(ctx context.Context, key string, fallback int) int {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		s.log.Debug("setting is not an integer", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return parsed
}

// GetFloat parses the value as a float.
func (s *Service) GetFloat(ctx context.Context, key string, fallback float64) float64 {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.log.Debug("setting is not a float", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return parsed
}

// GetBool parses the value as a boolean.
func (s *Service) GetBool(ctx context.Context, key string, fallback bool) bool {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		s.log.Debug("setting is not a boolean", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return parsed
}

// GetIntSlice parses the value as a JSON array of integers. Empty or
// malformed arrays fall back.
func (s *Service) GetIntSlice(ctx context.Context, key string, fallback []int) []int {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return fallback
	}
	var parsed []int
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || len(parsed) == 0 {
		s.log.Debug("setting is not an integer array", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return parsed
}
