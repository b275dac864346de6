package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
)

// NormalizeSolution makes answers comparable: transliterated to ASCII, case-folded,
// with whitespace runs collapsed and trimmed.
func NormalizeSolution(s string) string {
	s = unidecode.Unidecode(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// SolutionDigest is the stored form of a solution.
func SolutionDigest(salt, solution string) string {
	sum := sha256.Sum256([]byte(salt + ":" + NormalizeSolution(solution)))
	return hex.EncodeToString(sum[:])
}

func digestMatches(salt, submitted, stored string) bool {
	got := SolutionDigest(salt, submitted)
	return subtle.ConstantTimeCompare([]byte(got), []byte(stored)) == 1
}
