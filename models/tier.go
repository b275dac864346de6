package models

import "strings"

// Tier is a Creative Circle ordinal; higher is better.
type Tier int

const (
	TierBeginner Tier = iota + 1
	TierApprentice
	TierArtist
	TierMaster
	TierVirtuoso
	TierCreator
)

// Capability names a permission that either a tier confers or an unlock grants.
type Capability string

const (
	CapabilityAccessPremium    Capability = "access_premium"
	CapabilityCreateChallenges Capability = "create_challenges"
	CapabilityMentor           Capability = "mentor"
	CapabilityHostEvents       Capability = "host_events"
	CapabilityModerate         Capability = "moderate"
)

type TierInfo struct {
	Tier        Tier
	Name        string
	MinPoints   int64
	RateLimit   int // requests per limiter window
	Permissions []Capability
}

// Tiers is ascending by MinPoints. A tier covers [MinPoints, next.MinPoints).
var Tiers = []TierInfo{
	{Tier: TierBeginner, Name: "beginner", MinPoints: 0, RateLimit: 50},
	{Tier: TierApprentice, Name: "apprentice", MinPoints: 100, RateLimit: 75},
	{Tier: TierArtist, Name: "artist", MinPoints: 500, RateLimit: 100,
		Permissions: []Capability{CapabilityAccessPremium}},
	{Tier: TierMaster, Name: "master", MinPoints: 1500, RateLimit: 150,
		Permissions: []Capability{CapabilityAccessPremium, CapabilityCreateChallenges}},
	{Tier: TierVirtuoso, Name: "virtuoso", MinPoints: 5000, RateLimit: 200,
		Permissions: []Capability{CapabilityAccessPremium, CapabilityCreateChallenges, CapabilityMentor, CapabilityHostEvents}},
	{Tier: TierCreator, Name: "creator", MinPoints: 15000, RateLimit: 300,
		Permissions: []Capability{CapabilityAccessPremium, CapabilityCreateChallenges, CapabilityMentor, CapabilityHostEvents, CapabilityModerate}},
}

// TierForPoints returns the tier whose range contains points.
func TierForPoints(points int64) Tier {
	tier := TierBeginner
	for _, info := range Tiers {
		if points >= info.MinPoints {
			tier = info.Tier
		}
	}
	return tier
}

func ParseTier(name string) (Tier, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, info := range Tiers {
		if info.Name == name {
			return info.Tier, true
		}
	}
	return 0, false
}

func (t Tier) Valid() bool {
	return t >= TierBeginner && t <= TierCreator
}

func (t Tier) Info() TierInfo {
	if !t.Valid() {
		return Tiers[0]
	}
	return Tiers[t-1]
}

func (t Tier) String() string {
	if !t.Valid() {
		return "unknown"
	}
	return t.Info().Name
}

// Next returns the tier above t, if any.
func (t Tier) Next() (TierInfo, bool) {
	if !t.Valid() || t == TierCreator {
		return TierInfo{}, false
	}
	return Tiers[t], true
}

func (t Tier) HasPermission(c Capability) bool {
	for _, p := range t.Info().Permissions {
		if p == c {
			return true
		}
	}
	return false
}
