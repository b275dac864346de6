package catalog

import (
	"fmt"
	"time"

	"circle-progression-system/models"
)

type document struct {
	Unlockables []rawUnlockable `yaml:"unlockables"`
}

type rawUnlockable struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	Description   string           `yaml:"description"`
	Hint          string           `yaml:"hint"`
	Category      string           `yaml:"category"`
	Secret        bool             `yaml:"secret"`
	Prerequisites []string         `yaml:"prerequisites"`
	Requirements  []rawRequirement `yaml:"requirements"`
	Rewards       rawRewards       `yaml:"rewards"`
	Trigger       *rawTrigger      `yaml:"trigger"`
}

type rawRequirement struct {
	Kind         string            `yaml:"kind"`
	ActivityType string            `yaml:"activity_type"`
	Metadata     map[string]string `yaml:"metadata"`
	MinCount     int               `yaml:"min_count"`
}

type rawRewards struct {
	Points       int64  `yaml:"points"`
	TierFloor    string `yaml:"tier_floor"`
	Capabilities []struct {
		Kind string `yaml:"kind"`
		TTL  string `yaml:"ttl"`
	} `yaml:"capabilities"`
}

type rawTrigger struct {
	Method  string `yaml:"method"`
	Pattern string `yaml:"pattern"`
}

func (r rawUnlockable) toUnlockable() (Unlockable, error) {
	u := Unlockable{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Hint:          r.Hint,
		Category:      Category(r.Category),
		Secret:        r.Secret,
		Prerequisites: r.Prerequisites,
		Rewards:       Rewards{Points: r.Rewards.Points},
	}
	for _, rr := range r.Requirements {
		switch rr.Kind {
		case "has_event_of_type":
			u.Requirements = append(u.Requirements, HasEventOfType{ActivityType: rr.ActivityType, MinCount: rr.MinCount})
		case "has_event_with_metadata":
			u.Requirements = append(u.Requirements, HasEventWithMetadata{ActivityType: rr.ActivityType, Metadata: rr.Metadata, MinCount: rr.MinCount})
		default:
			return Unlockable{}, fmt.Errorf("unlockable %q: unknown requirement kind %q", r.ID, rr.Kind)
		}
	}
	if r.Rewards.TierFloor != "" {
		tier, ok := models.ParseTier(r.Rewards.TierFloor)
		if !ok {
			return Unlockable{}, fmt.Errorf("unlockable %q: unknown tier floor %q", r.ID, r.Rewards.TierFloor)
		}
		u.Rewards.TierFloor = tier
	}
	for _, c := range r.Rewards.Capabilities {
		cr := CapabilityReward{Kind: c.Kind}
		if c.TTL != "" {
			ttl, err := time.ParseDuration(c.TTL)
			if err != nil {
				return Unlockable{}, fmt.Errorf("unlockable %q: capability %q ttl: %w", r.ID, c.Kind, err)
			}
			cr.TTL = ttl
		}
		u.Rewards.Capabilities = append(u.Rewards.Capabilities, cr)
	}
	if r.Trigger != nil {
		u.Trigger = &Trigger{Method: TriggerMethod(r.Trigger.Method), Pattern: r.Trigger.Pattern}
	}
	return u, nil
}
