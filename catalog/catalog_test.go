package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"circle-progression-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultCatalog(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	assert.Len(t, c.ByCategory(CategoryArtKey), 7)
	assert.Len(t, c.ByCategory(CategoryEasterEgg), 5)
	assert.Len(t, c.ByCategory(CategoryAchievement), 5)

	lotus, ok := c.Get("lotus_bloom")
	require.True(t, ok)
	assert.True(t, lotus.Secret)
	assert.Empty(t, lotus.Requirements)
	assert.Equal(t, models.TierCreator, lotus.Rewards.TierFloor)
	assert.ElementsMatch(t, []string{"precision_focus", "storyteller_sage", "hidden_path_finder"}, lotus.Prerequisites)

	first, ok := c.Get("first_note")
	require.True(t, ok)
	require.Len(t, first.Requirements, 2)
	assert.Equal(t, HasEventOfType{ActivityType: "puzzle_solved:carnatic_sequence"}, first.Requirements[0])
	assert.Equal(t, HasEventWithMetadata{ActivityType: "portfolio_upload", Metadata: map[string]string{"category": "music"}}, first.Requirements[1])

	apprentice, ok := c.Get("quantum_apprentice")
	require.True(t, ok)
	assert.Equal(t, 720*time.Hour, apprentice.Rewards.Capabilities[0].TTL)

	konami := c.EasterEggs(TriggerKonamiCode)
	require.Len(t, konami, 1)
	assert.Equal(t, "quantum_konami", konami[0].ID)
}

func TestNewRejectsCycle(t *testing.T) {
	_, err := New([]Unlockable{
		{ID: "a", Category: CategoryArtKey, Prerequisites: []string{"c"}},
		{ID: "b", Category: CategoryArtKey, Prerequisites: []string{"a"}},
		{ID: "c", Category: CategoryArtKey, Prerequisites: []string{"b"}},
		{ID: "d", Category: CategoryArtKey},
	})

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Len(t, cycleErr.Cycles, 1)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycleErr.Cycles[0])
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestNewRejectsSelfPrerequisite(t *testing.T) {
	_, err := New([]Unlockable{{ID: "loop", Category: CategoryAchievement, Prerequisites: []string{"loop"}}})

	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestNewValidation(t *testing.T) {
	cases := map[string][]Unlockable{
		"duplicate id": {
			{ID: "a", Category: CategoryArtKey},
			{ID: "a", Category: CategoryArtKey},
		},
		"unknown prerequisite": {
			{ID: "a", Category: CategoryArtKey, Prerequisites: []string{"ghost"}},
		},
		"unknown category": {
			{ID: "a", Category: "trophy"},
		},
		"negative points": {
			{ID: "a", Category: CategoryArtKey, Rewards: Rewards{Points: -1}},
		},
		"egg without trigger": {
			{ID: "egg", Category: CategoryEasterEgg},
		},
		"trigger on art key": {
			{ID: "a", Category: CategoryArtKey, Trigger: &Trigger{Method: TriggerTextSequence, Pattern: "x"}},
		},
		"metadata requirement without keys": {
			{ID: "a", Category: CategoryArtKey, Requirements: []Requirement{HasEventWithMetadata{ActivityType: "x"}}},
		},
		"empty activity type": {
			{ID: "a", Category: CategoryArtKey, Requirements: []Requirement{HasEventOfType{}}},
		},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(items)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsUnknownKindAndTier(t *testing.T) {
	_, err := Load([]byte(`
unlockables:
  - id: a
    category: art_key
    requirements:
      - kind: has_streak
        activity_type: x
`))
	assert.ErrorContains(t, err, "unknown requirement kind")

	_, err = Load([]byte(`
unlockables:
  - id: a
    category: art_key
    rewards: {tier_floor: legend}
`))
	assert.ErrorContains(t, err, "unknown tier floor")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unlockables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
unlockables:
  - id: k1
    category: art_key
    requirements:
      - kind: has_event_of_type
        activity_type: upload_portfolio
    rewards: {points: 100}
`), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, c.IDs())
}

func TestAllReturnsCopy(t *testing.T) {
	c, err := New([]Unlockable{{ID: "a", Category: CategoryArtKey, Name: "A"}})
	require.NoError(t, err)

	all := c.All()
	all[0].Name = "mutated"

	got, _ := c.Get("a")
	assert.Equal(t, "A", got.Name)
}

func TestRequirementDescribeAndThreshold(t *testing.T) {
	r := HasEventWithMetadata{ActivityType: "portfolio_upload", Metadata: map[string]string{"category": "music", "a": "b"}, MinCount: 2}
	assert.Equal(t, "portfolio_upload[a=b,category=music] x2", r.Describe())
	assert.Equal(t, 2, Threshold(r))
	assert.Equal(t, 1, Threshold(HasEventOfType{ActivityType: "x"}))
}
