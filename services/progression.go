package services

import (
	"context"
	"errors"
	"time"

	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressionService struct {
	DB     *gorm.DB
	Cache  ProgressCache
	Grants *GrantService
	Clock  clockwork.Clock
	log    *logger.Logger
}

func NewProgressionService(db *gorm.DB, cache ProgressCache, grants *GrantService, clock clockwork.Clock, log *logger.Logger) *ProgressionService {
	if cache == nil {
		cache = NopCache{}
	}
	return &ProgressionService{DB: db, Cache: cache, Grants: grants, Clock: clock, log: log.With("service", "ProgressionService")}
}

// ensureProgressTx makes sure the user's progress row exists (idempotent).
func ensureProgressTx(tx *gorm.DB, userID string) error {
	prog := models.UserProgress{ExternalUserID: userID, Tier: models.TierBeginner}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&prog).Error
}

// lockProgressTx reads the progress row FOR UPDATE, creating it first if needed.
func lockProgressTx(tx *gorm.DB, userID string) (*models.UserProgress, error) {
	if err := ensureProgressTx(tx, userID); err != nil {
		return nil, err
	}
	var prog models.UserProgress
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_user_id = ?", userID).
		First(&prog).Error; err != nil {
		return nil, err
	}
	return &prog, nil
}

// EnsureProgressRecord ensures a UserProgress row exists (idempotent)
func (s *ProgressionService) EnsureProgressRecord(ctx context.Context, userID string) (*models.UserProgress, error) {
	if userID == "" {
		return nil, validationErr("user_id", "required")
	}
	if err := ensureProgressTx(s.DB.WithContext(ctx), userID); err != nil {
		return nil, classify("ensure progress", err)
	}
	var prog models.UserProgress
	if err := s.DB.WithContext(ctx).Where("external_user_id = ?", userID).First(&prog).Error; err != nil {
		return nil, classify("ensure progress", err)
	}
	return &prog, nil
}

// Snapshot returns points and tier, from cache when possible. Users without a row
// are reported as zero-point beginners.
func (s *ProgressionService) Snapshot(ctx context.Context, userID string) (ProgressSnapshot, error) {
	if snap, ok := s.Cache.Get(ctx, userID); ok {
		return snap, nil
	}
	var prog models.UserProgress
	err := s.DB.WithContext(ctx).Where("external_user_id = ?", userID).First(&prog).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ProgressSnapshot{UserID: userID, Tier: models.TierBeginner}, nil
	case err != nil:
		return ProgressSnapshot{}, classify("progress snapshot", err)
	}
	snap := ProgressSnapshot{UserID: userID, Points: prog.Points, Tier: prog.Tier}
	s.Cache.Set(ctx, snap)
	return snap, nil
}

type TierView struct {
	Tier      models.Tier `json:"tier"`
	Name      string      `json:"name"`
	MinPoints int64       `json:"min_points"`
}

type Profile struct {
	UserID        string                   `json:"user_id"`
	Points        int64                    `json:"points"`
	Tier          TierView                 `json:"tier"`
	NextTier      *TierView                `json:"next_tier,omitempty"`
	PointsToNext  int64                    `json:"points_to_next"`
	Permissions   []models.Capability      `json:"permissions"`
	RateLimit     int                      `json:"rate_limit"`
	TotalUnlocks  int64                    `json:"total_unlocks"`
	Capabilities  []models.CapabilityGrant `json:"capabilities"`
	LastTierUpAt  *time.Time               `json:"last_tier_up_at,omitempty"`
	UnlockedByCat map[string]int64         `json:"unlocked_by_category"`
}

func tierView(info models.TierInfo) TierView {
	return TierView{Tier: info.Tier, Name: info.Name, MinPoints: info.MinPoints}
}

// Profile assembles the reputation view shown to the user.
func (s *ProgressionService) Profile(ctx context.Context, userID string) (*Profile, error) {
	prog, err := s.EnsureProgressRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		grants []models.CapabilityGrant
		counts []struct {
			Category string
			N        int64
		}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		grants, err = s.Grants.Active(gctx, userID)
		return err
	})
	g.Go(func() error {
		return s.DB.WithContext(gctx).Model(&models.UserUnlock{}).
			Select("category, COUNT(*) AS n").
			Where("external_user_id = ?", userID).
			Group("category").
			Scan(&counts).Error
	})
	if err := g.Wait(); err != nil {
		return nil, classify("profile", err)
	}

	info := prog.Tier.Info()
	p := &Profile{
		UserID:        userID,
		Points:        prog.Points,
		Tier:          tierView(info),
		Permissions:   info.Permissions,
		RateLimit:     info.RateLimit,
		TotalUnlocks:  prog.TotalUnlocks,
		Capabilities:  grants,
		LastTierUpAt:  prog.LastTierUpAt,
		UnlockedByCat: make(map[string]int64, len(counts)),
	}
	if p.Permissions == nil {
		p.Permissions = []models.Capability{}
	}
	if next, ok := prog.Tier.Next(); ok {
		v := tierView(next)
		p.NextTier = &v
		p.PointsToNext = next.MinPoints - prog.Points
	}
	for _, c := range counts {
		p.UnlockedByCat[c.Category] = c.N
	}
	return p, nil
}

type HistoryPage struct {
	Entries    []models.PointsLedgerEntry `json:"entries"`
	Page       int                        `json:"page"`
	Size       int                        `json:"size"`
	TotalItems int64                      `json:"total_items"`
	TotalPages int                        `json:"total_pages"`
}

// History returns the user's ledger audit rows, newest first.
func (s *ProgressionService) History(ctx context.Context, userID string, page, size int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.PointsLedgerEntry{}).
		Where("external_user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, classify("history", err)
	}

	var entries []models.PointsLedgerEntry
	if err := s.DB.WithContext(ctx).
		Where("external_user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, classify("history", err)
	}

	return &HistoryPage{
		Entries:    entries,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

type LeaderboardEntry struct {
	Rank           int         `json:"rank"`
	ExternalUserID string      `json:"external_user_id"`
	Username       string      `json:"username"`
	Points         int64       `json:"points"`
	Tier           models.Tier `json:"tier"`
	TierName       string      `json:"tier_name"`
}

// Leaderboard ranks users by points. Usernames come from the member mirror when synced.
func (s *ProgressionService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	var rows []struct {
		ExternalUserID string
		Username       *string
		Points         int64
		Tier           models.Tier
	}
	err := s.DB.WithContext(ctx).
		Table("user_progresses AS p").
		Select("p.external_user_id, m.username, p.points, p.tier").
		Joins("LEFT JOIN members m ON m.external_user_id = p.external_user_id").
		Order("p.points DESC, p.updated_at ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, classify("leaderboard", err)
	}

	out := make([]LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		name := r.ExternalUserID
		if r.Username != nil && *r.Username != "" {
			name = *r.Username
		}
		out = append(out, LeaderboardEntry{
			Rank:           i + 1,
			ExternalUserID: r.ExternalUserID,
			Username:       name,
			Points:         r.Points,
			Tier:           r.Tier,
			TierName:       r.Tier.String(),
		})
	}
	return out, nil
}
