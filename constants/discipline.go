package constants

import "strings"

type Discipline string

const (
	Dressage    Discipline = "Dressage"
	ShowJumping Discipline = "ShowJumping"
	Eventing    Discipline = "Eventing"
	Unknown     Discipline = "Unknown"
)

var allDisciplines = []Discipline{
	Dressage,
	ShowJumping,
	Eventing,
	Unknown,
}

func DisciplinesAsStringSlice() []string {
	result := make([]string, len(allDisciplines))
	for i, d := range allDisciplines {
		result[i] = string(d)
	}
	return result
}

// CanonicalizeDiscipline maps free-text discipline labels onto the canonical
// set. Returns Unknown and false when the label is empty or unrecognized.
func CanonicalizeDiscipline(input string) (Discipline, bool) {
	if input == "" {
		return Unknown, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]Discipline{
		"dressage":      Dressage,
		"dressage test": Dressage,
		"flatwork":      Dressage,
		"jumping":       ShowJumping,
		"show jumping":  ShowJumping,
		"showjumping":   ShowJumping,
		"eventing":      Eventing,
		"horse trials":  Eventing,
	}
	if d, ok := synonyms[normalized]; ok {
		return d, true
	}
	for _, d := range allDisciplines {
		if strings.ToLower(string(d)) == normalized {
			return d, true
		}
	}
	return Unknown, false
}
