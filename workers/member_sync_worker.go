// workers/member_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"circle-progression-system/logger"
	"circle-progression-system/models"
	"circle-progression-system/utils"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile matches one entry of the profile sync service response.
type RemoteProfile struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	FirstName         *string   `json:"first_name,omitempty"`
	LastName          *string   `json:"last_name,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// MemberSyncWorker mirrors display data (usernames, avatars) from the profile
// service into members for the leaderboard.
type MemberSyncWorker struct {
	db           *gorm.DB
	clock        clockwork.Clock
	interval     time.Duration
	baseURL      string // e.g. "http://localhost:8500"
	endpointPath string // e.g. "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
	log          *logger.Logger
}

func NewMemberSyncWorker(db *gorm.DB, clock clockwork.Clock, syncServiceBaseURL, endpointPath, serviceToken string, log *logger.Logger) *MemberSyncWorker {
	return &MemberSyncWorker{
		db:           db,
		clock:        clock,
		interval:     time.Minute,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.NewHTTPClient(30 * time.Second),
		log:          log.With("worker", "MemberSyncWorker"),
	}
}

func (w *MemberSyncWorker) Start(ctx context.Context) {
	w.log.Info("🔁 [SYNC] starting member sync (profile service → members)")
	go w.run(ctx)
}

func (w *MemberSyncWorker) run(ctx context.Context) {
	// Initial sync backfills everything.
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		w.log.Warn("⚠️ [SYNC] initial sync failed", "error", err)
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := w.SyncOnce(ctx, w.lastSyncTime()); err != nil {
				w.log.Error("❌ [SYNC] batch failed", "error", err)
			}
		case <-ctx.Done():
			w.log.Info("⏹️ [SYNC] member sync stopped")
			return
		}
	}
}

// lastSyncTime is the newest updated_at in the local mirror.
func (w *MemberSyncWorker) lastSyncTime() time.Time {
	var latest models.Member
	err := w.db.Order("updated_at DESC").Limit(1).Find(&latest).Error
	if err != nil || latest.UpdatedAt.IsZero() {
		return time.Unix(0, 0)
	}
	return latest.UpdatedAt
}

// SyncOnce fetches profile changes since the given time and upserts them. It returns
// the number of members written.
func (w *MemberSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	w.log.Debug("➡️ [SYNC] fetching profile changes", "url", finalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, string(body))
	}

	var payload profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode sync service response: %w", err)
	}
	if len(payload.Users) == 0 {
		w.log.Debug("✅ [SYNC] no profile changes")
		return 0, nil
	}

	var upserted, failed int
	for _, remote := range payload.Users {
		if remote.ExternalID == "" || remote.Username == "" {
			failed++
			continue
		}
		member := models.Member{
			ExternalUserID:    remote.ExternalID,
			Username:          remote.Username,
			FirstName:         remote.FirstName,
			LastName:          remote.LastName,
			ProfilePictureURL: remote.ProfilePictureURL,
			CreatedAt:         remote.CreatedAt,
			UpdatedAt:         remote.UpdatedAt,
		}
		err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "first_name", "last_name", "profile_picture_url", "updated_at",
			}),
		}).Create(&member).Error
		if err != nil {
			failed++
			w.log.Warn("⚠️ [SYNC] member upsert failed", "external_user_id", remote.ExternalID, "error", err)
			continue
		}
		upserted++
	}

	w.log.Info("✅ [SYNC] members synced", "received", len(payload.Users), "upserted", upserted, "failed", failed)
	return upserted, nil
}
