package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"circle-progression-system/models"
)

// generated is a puzzle instance before it is persisted. Solution never leaves the process.
type generated struct {
	Challenge models.Metadata
	Hints     []string
	Solution  string
}

type generatorFunc func(d models.Difficulty, pick func(n int) int) generated

var generators = map[models.PuzzleType]generatorFunc{
	models.PuzzleCarnaticSequence: generateCarnatic,
	models.PuzzleQuantumCipher:    generateQuantumCipher,
	models.PuzzleRhythmPattern:    generateRhythm,
	models.PuzzleLiteraryCode:     generateLiteraryCode,
}

// cryptoPick returns a uniform index in [0, n).
func cryptoPick(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return int(v.Int64())
}

// hiddenCount is how many trailing elements of a sequence the solver must supply.
func hiddenCount(d models.Difficulty) int {
	switch d {
	case models.DifficultyVirtuoso:
		return 3
	case models.DifficultyMaster:
		return 4
	default:
		return 2
	}
}

type raga struct {
	Name    string
	Arohana []string
	Scale   string
}

var ragas = map[models.Difficulty][]raga{
	models.DifficultyNovice: {
		{Name: "Mohanam", Arohana: []string{"Sa", "Ri", "Ga", "Pa", "Dha", "Sa"}, Scale: "a pentatonic audava scale"},
		{Name: "Hamsadhwani", Arohana: []string{"Sa", "Ri", "Ga", "Pa", "Ni", "Sa"}, Scale: "a pentatonic audava scale"},
	},
	models.DifficultyApprentice: {
		{Name: "Shankarabharanam", Arohana: []string{"Sa", "Ri", "Ga", "Ma", "Pa", "Dha", "Ni", "Sa"}, Scale: "the 29th melakarta"},
		{Name: "Kalyani", Arohana: []string{"Sa", "Ri", "Ga", "Ma", "Pa", "Dha", "Ni", "Sa"}, Scale: "the 65th melakarta, with prati madhyamam"},
	},
	models.DifficultyVirtuoso: {
		{Name: "Bilahari", Arohana: []string{"Sa", "Ri", "Ga", "Pa", "Dha", "Sa", "Ni", "Dha", "Pa", "Ma", "Ga", "Ri", "Sa"}, Scale: "an audava-sampurna janya of Shankarabharanam"},
		{Name: "Todi", Arohana: []string{"Sa", "Ri", "Ga", "Ma", "Pa", "Dha", "Ni", "Sa", "Ni", "Dha", "Pa", "Ma", "Ga", "Ri", "Sa"}, Scale: "the 8th melakarta"},
	},
	models.DifficultyMaster: {
		{Name: "Varali", Arohana: []string{"Sa", "Ga", "Ri", "Ga", "Ma", "Pa", "Dha", "Ni", "Sa", "Ni", "Dha", "Pa", "Ma", "Ga", "Ri", "Sa"}, Scale: "the 39th melakarta, sung with vakra phrases"},
		{Name: "Simhendramadhyamam", Arohana: []string{"Sa", "Ri", "Ga", "Ma", "Pa", "Dha", "Ni", "Sa", "Ni", "Dha", "Pa", "Ma", "Ga", "Ri", "Sa"}, Scale: "the 57th melakarta"},
	},
}

func generateCarnatic(d models.Difficulty, pick func(int) int) generated {
	options := ragas[d]
	r := options[pick(len(options))]
	cut := len(r.Arohana) - hiddenCount(d)

	return generated{
		Challenge: models.Metadata{
			"raga":             r.Name,
			"partial_sequence": r.Arohana[:cut],
			"missing":          len(r.Arohana) - cut,
			"instruction":      fmt.Sprintf("Complete this %s sequence. Answer with the missing swaras joined by '-'", r.Name),
		},
		Hints: []string{
			fmt.Sprintf("%s is %s", r.Name, r.Scale),
			"Every phrase returns home to Sa",
		},
		Solution: strings.Join(r.Arohana[cut:], "-"),
	}
}

var cipherMessages = map[bool][]string{
	false: {
		"Awareness observes the dance of consciousness",
		"The lotus opens toward the light",
		"Every note carries the silence before it",
	},
	true: {
		"The quantum lotus blooms in superposition of all possibilities",
		"Observation collapses many futures into one",
	},
}

func cipherShift(d models.Difficulty) int {
	switch d {
	case models.DifficultyNovice:
		return 3
	case models.DifficultyApprentice:
		return 7
	case models.DifficultyVirtuoso:
		return 11
	default:
		return 13
	}
}

func caesar(msg string, shift int) string {
	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune('a' + (r-'a'+rune(shift))%26)
		case r >= 'A' && r <= 'Z':
			b.WriteRune('A' + (r-'A'+rune(shift))%26)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func generateQuantumCipher(d models.Difficulty, pick func(int) int) generated {
	long := d == models.DifficultyVirtuoso || d == models.DifficultyMaster
	options := cipherMessages[long]
	msg := options[pick(len(options))]
	shift := cipherShift(d)

	hints := []string{
		"Consider the observer effect",
		"Superposition contains all possible states",
	}
	if d == models.DifficultyNovice {
		hints = append(hints, fmt.Sprintf("Each letter moved %d places", shift))
	}
	return generated{
		Challenge: models.Metadata{
			"encrypted_text":   caesar(msg, shift),
			"literary_context": "From 'The Quantum Lotus' philosophical tradition",
			"instruction":      "Decode the wisdom",
		},
		Hints:    hints,
		Solution: msg,
	}
}

type tala struct {
	Name    string
	Pattern []string
}

var talas = map[models.Difficulty][]tala{
	models.DifficultyNovice: {
		{Name: "Adi", Pattern: []string{"ta", "ka", "di", "mi", "ta", "ka", "jo", "nu"}},
	},
	models.DifficultyApprentice: {
		{Name: "Rupaka", Pattern: []string{"ta", "ka", "ta", "ki", "ta", "ka"}},
		{Name: "Khanda Chapu", Pattern: []string{"ta", "ka", "ta", "di", "ki", "ta", "ka", "ta", "di", "ki"}},
	},
	models.DifficultyVirtuoso: {
		{Name: "Misra Chapu", Pattern: []string{"ta", "ki", "ta", "ta", "ka", "di", "mi", "ta", "ki", "ta", "ta", "ka", "di", "mi"}},
		{Name: "Jhampa", Pattern: []string{"ta", "ka", "di", "mi", "ta", "ka", "ta", "ka", "di", "mi"}},
	},
	models.DifficultyMaster: {
		{Name: "Sankeerna Jati Triputa", Pattern: []string{"ta", "ka", "di", "mi", "ta", "ka", "ja", "nu", "ta", "ki", "ta", "ta", "ka", "di", "mi", "ta", "ka"}},
		{Name: "Ata", Pattern: []string{"ta", "ka", "ta", "ki", "ta", "ta", "ka", "ta", "ki", "ta", "ta", "ka", "ta", "ka"}},
	},
}

func generateRhythm(d models.Difficulty, pick func(int) int) generated {
	options := talas[d]
	t := options[pick(len(options))]
	cut := len(t.Pattern) - hiddenCount(d)

	shown := make([]string, 0, len(t.Pattern))
	shown = append(shown, t.Pattern[:cut]...)
	missing := make([]int, 0, len(t.Pattern)-cut)
	for i := cut; i < len(t.Pattern); i++ {
		shown = append(shown, "?")
		missing = append(missing, i)
	}

	return generated{
		Challenge: models.Metadata{
			"tala":          t.Name,
			"pattern":       shown,
			"missing_beats": missing,
			"instruction":   fmt.Sprintf("Complete this %s cycle. Answer with the missing syllables joined by '-'", t.Name),
		},
		Hints: []string{
			fmt.Sprintf("%s has %d beats per cycle", t.Name, len(t.Pattern)),
			"Keep the subdivisions and accents",
		},
		Solution: strings.Join(t.Pattern[cut:], "-"),
	}
}

type acrostic struct {
	Word  string
	Lines []string
}

var acrostics = map[models.Difficulty][]acrostic{
	models.DifficultyNovice: {
		{Word: "ART", Lines: []string{"All colours begin as light", "Rivers remember the rain", "Time paints slowly"}},
		{Word: "SA", Lines: []string{"Silence holds the first note", "All songs return to it"}},
	},
	models.DifficultyApprentice: {
		{Word: "LOTUS", Lines: []string{"Light falls on still water", "Opening petals greet the dawn", "The mud is not forgotten", "Under the surface roots drink deep", "Slowly the flower rises"}},
		{Word: "RAGA", Lines: []string{"Rising notes find their way", "A phrase bends toward home", "Gamakas colour the line", "And the listener sighs"}},
	},
	models.DifficultyVirtuoso: {
		{Word: "HARMONY", Lines: []string{"Hands meet across the table", "Another voice joins the chorus", "Rhythms lock together", "Melodies weave and part", "Old songs learn new words", "No one sings alone", "Yes, the circle widens"}},
	},
	models.DifficultyMaster: {
		{Word: "OBSERVER", Lines: []string{"Only when watched", "Both paths collapse", "Still the wave remembers", "Every possibility", "Rests in the moment", "Visible and not", "Eyes close, worlds open", "Reality chooses"}},
		{Word: "QUANTUM", Lines: []string{"Quiet fields hum beneath", "Uncertain, the particle waits", "A measurement decides", "Nothing is fixed until seen", "Threads of chance entwine", "Under every certainty", "Many worlds unfold"}},
	},
}

func generateLiteraryCode(d models.Difficulty, pick func(int) int) generated {
	options := acrostics[d]
	a := options[pick(len(options))]
	return generated{
		Challenge: models.Metadata{
			"verse":       a.Lines,
			"instruction": "A word is hidden in this verse. Name it",
		},
		Hints: []string{
			"Poets sometimes speak with the first breath of each line",
			fmt.Sprintf("The word has %d letters", len(a.Word)),
		},
		Solution: a.Word,
	}
}
