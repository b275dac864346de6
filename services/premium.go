package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/gosimple/slug"
)

// Presigner signs object download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type PremiumLink struct {
	ContentKey string    `json:"content_key"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PremiumService hands out premium content links to users the gate admits.
type PremiumService struct {
	Gate      *Gate
	Presigner Presigner
	TTL       time.Duration
	log       *logger.Logger
}

func NewPremiumService(gate *Gate, presigner Presigner, ttl time.Duration, log *logger.Logger) *PremiumService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PremiumService{Gate: gate, Presigner: presigner, TTL: ttl, log: log.With("service", "PremiumService")}
}

// ObjectKey maps a content key to its bucket object, e.g. "Quantum Basics Course" to
// "premium/quantum-basics-course".
func ObjectKey(contentKey string) string {
	return "premium/" + slug.Make(contentKey)
}

// Link returns a presigned URL for the content. The user needs the tier permission
// access_premium or an explicit premium:<content> grant.
func (p *PremiumService) Link(ctx context.Context, userID, contentKey string) (*PremiumLink, error) {
	contentKey = strings.TrimSpace(contentKey)
	if contentKey == "" || slug.Make(contentKey) == "" {
		return nil, validationErr("content_key", "required")
	}
	if premiumAccess(ctx, p.Gate, userID, premiumGrantKind(contentKey)) == accessUpgradeRequired {
		return nil, ruleErr(ReasonMissingCapability, "premium content %q is not available to this user", contentKey)
	}

	url, err := p.Presigner.PresignGet(ctx, ObjectKey(contentKey), p.TTL)
	if err != nil {
		return nil, &TransientError{Op: "presign premium content", Err: err}
	}
	p.log.Debug("[PREMIUM] link issued", "user_id", userID, "content_key", contentKey)
	return &PremiumLink{
		ContentKey: contentKey,
		URL:        url,
		ExpiresAt:  time.Now().UTC().Add(p.TTL),
	}, nil
}

const (
	accessTier            = "tier"
	accessGrant           = "grant"
	accessUpgradeRequired = "upgrade_required"
)

// premiumGrantKind maps a content key to the grant kind that unlocks it.
func premiumGrantKind(contentKey string) string {
	return "premium:" + strings.ReplaceAll(slug.Make(contentKey), "-", "_")
}

func premiumAccess(ctx context.Context, gate *Gate, userID, kind string) string {
	switch {
	case gate.HasCapability(ctx, userID, string(models.CapabilityAccessPremium)):
		return accessTier
	case gate.HasCapability(ctx, userID, kind):
		return accessGrant
	default:
		return accessUpgradeRequired
	}
}

type PremiumEntry struct {
	ContentKey   string   `json:"content_key"`
	Kind         string   `json:"kind"`
	HasAccess    bool     `json:"has_access"`
	AccessMethod string   `json:"access_method"`
	UnlockedBy   []string `json:"unlocked_by"`
}

// ListPremium lists every premium content item the catalog can grant, with the user's
// access to each. The all-content grant is not an item of its own.
func ListPremium(ctx context.Context, gate *Gate, cat *catalog.Catalog, userID string) []PremiumEntry {
	byKind := map[string]*PremiumEntry{}
	for _, u := range cat.All() {
		for _, r := range u.Rewards.Capabilities {
			if !strings.HasPrefix(r.Kind, "premium:") || r.Kind == allPremiumGrant {
				continue
			}
			e, ok := byKind[r.Kind]
			if !ok {
				e = &PremiumEntry{ContentKey: strings.TrimPrefix(r.Kind, "premium:"), Kind: r.Kind}
				byKind[r.Kind] = e
			}
			e.UnlockedBy = append(e.UnlockedBy, u.ID)
		}
	}

	entries := make([]PremiumEntry, 0, len(byKind))
	for _, e := range byKind {
		e.AccessMethod = premiumAccess(ctx, gate, userID, e.Kind)
		e.HasAccess = e.AccessMethod != accessUpgradeRequired
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ContentKey < entries[j].ContentKey })
	return entries
}
