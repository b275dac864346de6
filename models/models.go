package models

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Member{},
		&UserProgress{},
		&ActivityEvent{},
		&UserUnlock{},
		&CapabilityGrant{},
		&PointsLedgerEntry{},
		&PuzzleChallenge{},
	}
}
