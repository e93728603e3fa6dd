package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-finder-backend/internal/apperr"
	"parking-finder-backend/internal/locate"
	"parking-finder-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	FetchRanked(ctx context.Context, q locate.Point, limit int) ([]locate.CombinedRow, error)
	AssignAvailable(ctx context.Context, q locate.Point, reporterID string, reward int) (*AssignResult, error)
	UpsertLots(ctx context.Context, items []LotItem) error
	CreateUser(ctx context.Context, id, passwordHash string) (*model.User, error)
	FindUser(ctx context.Context, id string) (*model.User, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// FetchRanked loads every lot and restriction window and ranks them by
// planar distance from q. It never writes.
func (s *gormStore) FetchRanked(ctx context.Context, q locate.Point, limit int) ([]locate.CombinedRow, error) {
	var lots []model.ParkingLot
	if err := s.db.WithContext(ctx).Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch parking lots: %w", err)
	}
	if len(lots) == 0 {
		return []locate.CombinedRow{}, nil
	}

	var windows []model.BlockRestriction
	if err := s.db.WithContext(ctx).Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch block restrictions: %w", err)
	}

	return locate.Rank(lots, windows, q, limit), nil
}

// AssignAvailable marks the nearest non-restricted lot as available. The
// selection, the status update and the optional reporter reward run in a
// single transaction; nothing is written when it fails.
func (s *gormStore) AssignAvailable(ctx context.Context, q locate.Point, reporterID string, reward int) (*AssignResult, error) {
	var result AssignResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []model.ParkingLot
		if err := tx.Where("status <> ?", model.LotStatusRestricted).Find(&candidates).Error; err != nil {
			return fmt.Errorf("failed to fetch eligible lots: %w", err)
		}

		lot, ok := locate.NearestEligible(candidates, q)
		if !ok {
			return apperr.NotFound(ErrNoEligibleLot)
		}
		result.PreviousStatus = lot.Status

		if err := tx.Model(&model.ParkingLot{}).
			Where("id = ?", lot.ID).
			Update("status", model.LotStatusAvailable).Error; err != nil {
			return fmt.Errorf("failed to update status of lot %s: %w", lot.ID, err)
		}

		if err := tx.First(&result.Lot, "id = ?", lot.ID).Error; err != nil {
			return fmt.Errorf("failed to reload lot %s: %w", lot.ID, err)
		}

		if reporterID != "" {
			credits, err := rewardReporter(tx, reporterID, reward)
			if err != nil {
				return err
			}
			result.Credits = &credits
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func rewardReporter(tx *gorm.DB, userID string, reward int) (int, error) {
	res := tx.Model(&model.User{}).
		Where("id = ?", userID).
		Update("credits", gorm.Expr("credits + ?", reward))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reward user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, apperr.NotFound(ErrUserNotFound)
	}

	var user model.User
	if err := tx.Select("credits").First(&user, "id = ?", userID).Error; err != nil {
		return 0, fmt.Errorf("failed to reload user %s: %w", userID, err)
	}
	return user.Credits, nil
}

// upsertBatchSize bounds the rows per INSERT and the ids per DELETE so a
// full feed stays under the driver's bind parameter limit.
var upsertBatchSize = 500

// UpsertLots writes feed records: lots are upserted by id and the windows of
// every imported lot are replaced by the feed's windows.
func (s *gormStore) UpsertLots(ctx context.Context, items []LotItem) error {
	if len(items) == 0 {
		return nil
	}

	lots := make([]model.ParkingLot, 0, len(items))
	ids := make([]string, 0, len(items))
	var windows []model.BlockRestriction
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ID == "" {
			slog.Warn("skipping feed item without id", "street_name", item.StreetName)
			continue
		}
		if seen[item.ID] {
			slog.Warn("skipping duplicate feed item", "id", item.ID)
			continue
		}
		seen[item.ID] = true

		lots = append(lots, model.ParkingLot{
			ID:          item.ID,
			StreetName:  item.StreetName,
			Latitude:    item.Latitude,
			Longitude:   item.Longitude,
			Status:      model.LotStatus(item.Status),
			LastUpdated: item.LastUpdated,
		})
		ids = append(ids, item.ID)
		for _, r := range item.Restrictions {
			windows = append(windows, model.BlockRestriction{
				BlockID:          item.ID,
				Day:              r.Day,
				StartTime:        r.StartTime,
				EndTime:          r.EndTime,
				TimeLimitMinutes: r.TimeLimitMinutes,
			})
		}
	}
	if len(lots) == 0 {
		return nil
	}

	slog.Info("batch upserting parking lots", "lots", len(lots), "restrictions", len(windows))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"street_name", "latitude", "longitude", "status", "last_updated"}),
		}).CreateInBatches(&lots, upsertBatchSize).Error; err != nil {
			return fmt.Errorf("batch upsert parking lots failed: %w", err)
		}

		for chunk := range slices.Chunk(ids, upsertBatchSize) {
			if err := tx.Where("block_id IN ?", chunk).Delete(&model.BlockRestriction{}).Error; err != nil {
				return fmt.Errorf("failed to clear block restrictions: %w", err)
			}
		}
		if len(windows) > 0 {
			if err := tx.CreateInBatches(&windows, upsertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to create block restrictions: %w", err)
			}
		}
		return nil
	})
}

// CreateUser inserts a new user with zero credits.
func (s *gormStore) CreateUser(ctx context.Context, id, passwordHash string) (*model.User, error) {
	user := model.User{ID: id, PasswordHash: passwordHash}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up user %s: %w", id, err)
		}
		if count > 0 {
			return apperr.Conflict(ErrUserExists)
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUser returns the user with the given id.
func (s *gormStore) FindUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", id, err)
	}
	return &user, nil
}
