package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PuzzleType string

const (
	PuzzleCarnaticSequence PuzzleType = "carnatic_sequence"
	PuzzleQuantumCipher    PuzzleType = "quantum_cipher"
	PuzzleRhythmPattern    PuzzleType = "rhythm_pattern"
	PuzzleLiteraryCode     PuzzleType = "literary_code"
)

var PuzzleTypes = []PuzzleType{PuzzleCarnaticSequence, PuzzleQuantumCipher, PuzzleRhythmPattern, PuzzleLiteraryCode}

type Difficulty string

const (
	DifficultyNovice     Difficulty = "novice"
	DifficultyApprentice Difficulty = "apprentice"
	DifficultyVirtuoso   Difficulty = "virtuoso"
	DifficultyMaster     Difficulty = "master"
)

var Difficulties = []Difficulty{DifficultyNovice, DifficultyApprentice, DifficultyVirtuoso, DifficultyMaster}

// PuzzleChallenge is ephemeral: deleted when solved, swept once expired.
// Only a salted digest of the solution is stored.
type PuzzleChallenge struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string     `gorm:"not null;index" json:"-"`
	Type           PuzzleType `gorm:"size:32;not null" json:"type"`
	Difficulty     Difficulty `gorm:"size:16;not null" json:"difficulty"`
	ChallengeData  Metadata   `gorm:"type:jsonb;serializer:json" json:"challenge"`
	Hints          []string   `gorm:"type:jsonb;serializer:json" json:"hints"`
	SolutionDigest string     `gorm:"size:64;not null" json:"-"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts    int        `gorm:"not null" json:"max_attempts"`
	ExpiresAt      time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (p *PuzzleChallenge) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
