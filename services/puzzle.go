package services

import (
	"context"
	"errors"
	"time"

	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultMaxAttempts = 3

var basePoints = map[models.Difficulty]int64{
	models.DifficultyNovice:     10,
	models.DifficultyApprentice: 25,
	models.DifficultyVirtuoso:   50,
	models.DifficultyMaster:     100,
}

// multipliers in tenths
var typeMultipliers = map[models.PuzzleType]int64{
	models.PuzzleCarnaticSequence: 15,
	models.PuzzleQuantumCipher:    20,
	models.PuzzleRhythmPattern:    13,
	models.PuzzleLiteraryCode:     18,
}

// PuzzlePoints is base[difficulty] x multiplier[type], rounded half up.
func PuzzlePoints(d models.Difficulty, t models.PuzzleType) int64 {
	base, ok := basePoints[d]
	if !ok {
		return 0
	}
	mult, ok := typeMultipliers[t]
	if !ok {
		return 0
	}
	return (base*mult + 5) / 10
}

// TimeLimit is how long a generated puzzle stays solvable.
func TimeLimit(t models.PuzzleType, d models.Difficulty) time.Duration {
	master := d == models.DifficultyMaster
	var secs int
	switch t {
	case models.PuzzleCarnaticSequence:
		secs = pickLimit(master, 300, 180)
	case models.PuzzleQuantumCipher:
		secs = pickLimit(master, 600, 300)
	case models.PuzzleRhythmPattern:
		secs = pickLimit(master, 240, 120)
	default:
		secs = pickLimit(master, 420, 240)
	}
	return time.Duration(secs) * time.Second
}

func pickLimit(master bool, m, other int) int {
	if master {
		return m
	}
	return other
}

func ParsePuzzleType(s string) (models.PuzzleType, error) {
	for _, t := range models.PuzzleTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", validationErr("type", "unknown puzzle type %q", s)
}

func ParseDifficulty(s string) (models.Difficulty, error) {
	for _, d := range models.Difficulties {
		if string(d) == s {
			return d, nil
		}
	}
	return "", validationErr("difficulty", "unknown difficulty %q", s)
}

type VerifyOutcome struct {
	PuzzleID          string       `json:"puzzle_id"`
	Correct           bool         `json:"correct"`
	Reason            Reason       `json:"reason,omitempty"`
	AttemptsRemaining int          `json:"attempts_remaining"`
	PointsAwarded     int64        `json:"points_awarded"`
	EventID           string       `json:"event_id,omitempty"`
	Award             *AwardResult `json:"award,omitempty"`
}

type PuzzleService struct {
	UoW         *UnitOfWork
	Activity    *ActivityLog
	Ledger      *Ledger
	Gate        *Gate
	Clock       clockwork.Clock
	Salt        string
	MaxAttempts int
	// Pick chooses a random index; crypto/rand unless replaced in tests.
	Pick func(n int) int
	log  *logger.Logger
}

func NewPuzzleService(uow *UnitOfWork, activity *ActivityLog, ledger *Ledger, gate *Gate, clock clockwork.Clock, salt string, maxAttempts int, log *logger.Logger) *PuzzleService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &PuzzleService{
		UoW:         uow,
		Activity:    activity,
		Ledger:      ledger,
		Gate:        gate,
		Clock:       clock,
		Salt:        salt,
		MaxAttempts: maxAttempts,
		Pick:        cryptoPick,
		log:         log.With("service", "PuzzleService"),
	}
}

// Generate creates and stores a puzzle for the user. Difficulties above the user's tier
// are refused with an insufficient_tier rule error.
func (s *PuzzleService) Generate(ctx context.Context, userID string, t models.PuzzleType, d models.Difficulty) (*models.PuzzleChallenge, error) {
	if userID == "" {
		return nil, validationErr("user_id", "required")
	}
	gen, ok := generators[t]
	if !ok {
		return nil, validationErr("type", "unknown puzzle type %q", t)
	}
	if _, ok := basePoints[d]; !ok {
		return nil, validationErr("difficulty", "unknown difficulty %q", d)
	}
	if s.Gate != nil && !s.Gate.CanAttemptDifficulty(ctx, userID, d) {
		return nil, ruleErr(ReasonInsufficientTier, "%s puzzles require tier %s", d, RequiredTierFor(d))
	}

	g := gen(d, s.Pick)
	now := s.Clock.Now().UTC()
	p := &models.PuzzleChallenge{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		Type:           t,
		Difficulty:     d,
		ChallengeData:  g.Challenge,
		Hints:          g.Hints,
		SolutionDigest: SolutionDigest(s.Salt, g.Solution),
		MaxAttempts:    s.MaxAttempts,
		ExpiresAt:      now.Add(TimeLimit(t, d)),
		CreatedAt:      now,
	}
	if err := s.UoW.DB.WithContext(ctx).Create(p).Error; err != nil {
		return nil, classify("generate puzzle", err)
	}
	s.log.Debug("[PUZZLE] generated", "user_id", userID, "puzzle_id", p.ID, "type", t, "difficulty", d)
	return p, nil
}

// Verify checks a submission. Expired and exhausted puzzles are refused before the
// attempt counter moves; a correct answer records puzzle_solved:<type>, awards points
// and removes the puzzle in the same transaction.
func (s *PuzzleService) Verify(ctx context.Context, userID, puzzleID, solution string) (VerifyOutcome, error) {
	if _, err := uuid.Parse(puzzleID); err != nil {
		return VerifyOutcome{}, validationErr("puzzle_id", "malformed puzzle id")
	}
	if userID == "" {
		return VerifyOutcome{}, validationErr("user_id", "required")
	}

	var (
		out    = VerifyOutcome{PuzzleID: puzzleID}
		ptype  models.PuzzleType
		points int64
	)
	err := s.UoW.Do(ctx, func(tx *gorm.DB) error {
		var p models.PuzzleChallenge
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", puzzleID).
			First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && p.ExternalUserID != userID) {
			return validationErr("puzzle_id", "unknown puzzle")
		}
		if err != nil {
			return err
		}
		ptype = p.Type

		if !s.Clock.Now().Before(p.ExpiresAt) {
			out.Reason = ReasonPuzzleExpired
			return tx.Delete(&models.PuzzleChallenge{}, "id = ?", p.ID).Error
		}
		if p.Attempts >= p.MaxAttempts {
			out.Reason = ReasonAttemptsExhausted
			return nil
		}

		p.Attempts++
		if err := tx.Model(&models.PuzzleChallenge{}).
			Where("id = ?", p.ID).
			Update("attempts", p.Attempts).Error; err != nil {
			return err
		}
		out.AttemptsRemaining = p.MaxAttempts - p.Attempts

		if !digestMatches(s.Salt, solution, p.SolutionDigest) {
			out.Reason = ReasonIncorrectSolution
			return nil
		}

		md := models.Metadata{"puzzle_id": p.ID, "difficulty": string(p.Difficulty), "attempts": p.Attempts}
		eventID, err := s.Activity.RecordTx(tx, userID, "puzzle_solved:"+string(p.Type), md)
		if err != nil {
			return err
		}
		points = PuzzlePoints(p.Difficulty, p.Type)
		award, err := s.Ledger.AwardTx(tx, userID, points, "puzzle:"+string(p.Type), md)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.PuzzleChallenge{}, "id = ?", p.ID).Error; err != nil {
			return err
		}

		out.Correct = true
		out.EventID = eventID
		out.PointsAwarded = points
		out.Award = &award
		return nil
	})
	if err != nil {
		return VerifyOutcome{}, classify("verify puzzle", err)
	}

	result := "correct"
	if !out.Correct {
		result = string(out.Reason)
	}
	puzzleVerificationsTotal.WithLabelValues(string(ptype), result).Inc()
	if out.Correct {
		s.Ledger.Cache.Invalidate(ctx, userID)
		observeAward("puzzle", *out.Award, points)
		s.log.Info("[PUZZLE] solved", "user_id", userID, "puzzle_id", puzzleID, "type", ptype, "points", points)
	}
	return out, nil
}

// OpenPuzzle is a generated puzzle the user can still submit to.
type OpenPuzzle struct {
	models.PuzzleChallenge
	AttemptsRemaining int   `json:"attempts_remaining"`
	PointsOnSolve     int64 `json:"points_on_solve"`
}

// Open lists the user's unexpired puzzles that have attempts left, oldest first.
func (s *PuzzleService) Open(ctx context.Context, userID string) ([]OpenPuzzle, error) {
	if userID == "" {
		return nil, validationErr("user_id", "required")
	}
	var rows []models.PuzzleChallenge
	err := s.UoW.DB.WithContext(ctx).
		Where("external_user_id = ? AND expires_at > ? AND attempts < max_attempts", userID, s.Clock.Now().UTC()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list open puzzles", err)
	}
	open := make([]OpenPuzzle, 0, len(rows))
	for _, p := range rows {
		open = append(open, OpenPuzzle{
			PuzzleChallenge:   p,
			AttemptsRemaining: p.MaxAttempts - p.Attempts,
			PointsOnSolve:     PuzzlePoints(p.Difficulty, p.Type),
		})
	}
	return open, nil
}

type DifficultyAccess struct {
	Difficulty   models.Difficulty `json:"difficulty"`
	RequiredTier string            `json:"required_tier"`
	Allowed      bool              `json:"allowed"`
}

// Difficulties reports which puzzle difficulties the user's tier may generate.
func (s *PuzzleService) Difficulties(ctx context.Context, userID string) []DifficultyAccess {
	out := make([]DifficultyAccess, 0, len(models.Difficulties))
	for _, d := range models.Difficulties {
		out = append(out, DifficultyAccess{
			Difficulty:   d,
			RequiredTier: RequiredTierFor(d).String(),
			Allowed:      s.Gate == nil || s.Gate.CanAttemptDifficulty(ctx, userID, d),
		})
	}
	return out
}

// SweepExpired deletes puzzles that can no longer be solved: expired or out of attempts.
func (s *PuzzleService) SweepExpired(ctx context.Context) (int64, error) {
	res := s.UoW.DB.WithContext(ctx).
		Where("expires_at <= ? OR attempts >= max_attempts", s.Clock.Now().UTC()).
		Delete(&models.PuzzleChallenge{})
	if res.Error != nil {
		return 0, classify("sweep puzzles", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Info("[PUZZLE] swept stale puzzles", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
