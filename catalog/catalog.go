// Package catalog holds the static unlockable definitions (ART keys, achievements,
// easter eggs). A Catalog is built once at startup and never mutated afterwards.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"circle-progression-system/models"

	"gopkg.in/yaml.v3"
)

//go:embed unlockables.yaml
var defaultDefinitions []byte

type Category string

const (
	CategoryArtKey      Category = "art_key"
	CategoryAchievement Category = "achievement"
	CategoryEasterEgg   Category = "easter_egg"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryArtKey, CategoryAchievement, CategoryEasterEgg:
		return true
	}
	return false
}

// AutoUnlocks reports whether unlockables of this category are unlocked as soon as
// they become eligible. ART keys need an explicit unlock request.
func (c Category) AutoUnlocks() bool {
	return c == CategoryAchievement || c == CategoryEasterEgg
}

type TriggerMethod string

const (
	TriggerKonamiCode       TriggerMethod = "konami_code"
	TriggerTextSequence     TriggerMethod = "text_sequence"
	TriggerClickPattern     TriggerMethod = "click_pattern"
	TriggerTimeBased        TriggerMethod = "time_based"
	TriggerQuantumAlignment TriggerMethod = "quantum_alignment"
)

func (m TriggerMethod) Valid() bool {
	switch m {
	case TriggerKonamiCode, TriggerTextSequence, TriggerClickPattern, TriggerTimeBased, TriggerQuantumAlignment:
		return true
	}
	return false
}

// Trigger describes how an easter egg is discovered.
type Trigger struct {
	Method  TriggerMethod
	Pattern string
}

type CapabilityReward struct {
	Kind string
	TTL  time.Duration // zero means the grant never expires
}

type Rewards struct {
	Points       int64
	TierFloor    models.Tier // zero means no floor
	Capabilities []CapabilityReward
}

type Unlockable struct {
	ID            string
	Name          string
	Description   string
	Hint          string
	Category      Category
	Requirements  []Requirement
	Prerequisites []string
	Rewards       Rewards
	Secret        bool
	Trigger       *Trigger
}

// Catalog is an immutable, id-indexed set of unlockables with an acyclic prerequisite graph.
type Catalog struct {
	items []Unlockable
	byID  map[string]int
}

// New validates the definitions and builds a catalog. Definition order is preserved.
func New(items []Unlockable) (*Catalog, error) {
	c := &Catalog{
		items: make([]Unlockable, len(items)),
		byID:  make(map[string]int, len(items)),
	}
	copy(c.items, items)
	for i, u := range c.items {
		if u.ID == "" {
			return nil, fmt.Errorf("unlockable #%d: empty id", i)
		}
		if _, dup := c.byID[u.ID]; dup {
			return nil, fmt.Errorf("unlockable %q: duplicate id", u.ID)
		}
		c.byID[u.ID] = i
	}
	for _, u := range c.items {
		if err := c.validate(u); err != nil {
			return nil, err
		}
	}
	if cycles := findCycles(c.items); len(cycles) > 0 {
		return nil, &CycleError{Cycles: cycles}
	}
	return c, nil
}

// LoadDefault builds the catalog from the embedded definitions.
func LoadDefault() (*Catalog, error) {
	return Load(defaultDefinitions)
}

// LoadFile builds the catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unlockables file: %w", err)
	}
	return Load(data)
}

// Load parses YAML definitions and builds a catalog.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse unlockables: %w", err)
	}
	items := make([]Unlockable, 0, len(doc.Unlockables))
	for _, raw := range doc.Unlockables {
		u, err := raw.toUnlockable()
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return New(items)
}

func (c *Catalog) Get(id string) (Unlockable, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Unlockable{}, false
	}
	return c.items[i], true
}

func (c *Catalog) Len() int { return len(c.items) }

// All returns every unlockable in definition order.
func (c *Catalog) All() []Unlockable {
	out := make([]Unlockable, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) ByCategory(cat Category) []Unlockable {
	var out []Unlockable
	for _, u := range c.items {
		if u.Category == cat {
			out = append(out, u)
		}
	}
	return out
}

// EasterEggs returns easter eggs discoverable with the given trigger method.
func (c *Catalog) EasterEggs(method TriggerMethod) []Unlockable {
	var out []Unlockable
	for _, u := range c.items {
		if u.Category == CategoryEasterEgg && u.Trigger != nil && u.Trigger.Method == method {
			out = append(out, u)
		}
	}
	return out
}

// IDs returns all ids sorted, mostly for logs and tests.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.items))
	for _, u := range c.items {
		ids = append(ids, u.ID)
	}
	sort.Strings(ids)
	return ids
}

func (c *Catalog) validate(u Unlockable) error {
	if !u.Category.Valid() {
		return fmt.Errorf("unlockable %q: unknown category %q", u.ID, u.Category)
	}
	if u.Rewards.Points < 0 {
		return fmt.Errorf("unlockable %q: negative reward points", u.ID)
	}
	if u.Rewards.TierFloor != 0 && !u.Rewards.TierFloor.Valid() {
		return fmt.Errorf("unlockable %q: invalid tier floor %d", u.ID, u.Rewards.TierFloor)
	}
	for _, cr := range u.Rewards.Capabilities {
		if cr.Kind == "" {
			return fmt.Errorf("unlockable %q: capability reward without kind", u.ID)
		}
		if cr.TTL < 0 {
			return fmt.Errorf("unlockable %q: negative ttl for capability %q", u.ID, cr.Kind)
		}
	}
	for i, req := range u.Requirements {
		if err := validateRequirement(req); err != nil {
			return fmt.Errorf("unlockable %q requirement #%d: %w", u.ID, i, err)
		}
	}
	for _, p := range u.Prerequisites {
		if p == u.ID {
			return &CycleError{Cycles: [][]string{{u.ID, u.ID}}}
		}
		if _, ok := c.byID[p]; !ok {
			return fmt.Errorf("unlockable %q: unknown prerequisite %q", u.ID, p)
		}
	}
	switch {
	case u.Category == CategoryEasterEgg && u.Trigger == nil:
		return fmt.Errorf("easter egg %q: missing trigger", u.ID)
	case u.Category != CategoryEasterEgg && u.Trigger != nil:
		return fmt.Errorf("unlockable %q: only easter eggs have triggers", u.ID)
	case u.Trigger != nil && !u.Trigger.Method.Valid():
		return fmt.Errorf("easter egg %q: unknown trigger method %q", u.ID, u.Trigger.Method)
	case u.Trigger != nil && u.Trigger.Pattern == "":
		return fmt.Errorf("easter egg %q: empty trigger pattern", u.ID)
	}
	return nil
}
