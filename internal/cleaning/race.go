package cleaning

import "strings"

// Canonical race/ethnicity groups
const (
	RaceCaucasian   = "caucasian"
	RaceBlack       = "black"
	RaceMultiRacial = "multi-racial"
	RaceOther       = "other"
)

// Rule is a literal substring substitution
type Rule struct {
	From string
	To   string
}

// RaceMapper collapses free-text race/ethnicity answers into a handful of
// analysis groups. Every step is data so each collapsing rule can be checked
// on its own.
type RaceMapper struct {
	// Separators unify how multiple answers are joined
	Separators []Rule
	// Synonyms merge spellings of the same answer; applied in order after Separators
	Synonyms []Rule
	// Groups maps a fully normalised label to its group
	Groups map[string]string
	// MultiMarker marks a label with more than one answer
	MultiMarker string
	MultiGroup  string
	Fallback    string
}

// DefaultRaceMapper reproduces the grouping used for the camp surveys
func DefaultRaceMapper() *RaceMapper {
	return &RaceMapper{
		Separators: []Rule{
			{From: ", ", To: "/"},
			{From: " / ", To: "/"},
			{From: " /", To: "/"},
		},
		Synonyms: []Rule{
			{From: "black/african", To: "black"},
			{From: "hispanic/latinx", To: "hispanic"},
			{From: "hispanic latinx", To: "hispanic"},
			{From: "korean", To: "asian"},
			{From: "asian/caucasian", To: "caucasian/asian"},
		},
		Groups: map[string]string{
			"caucasian": RaceCaucasian,
			"black":     RaceBlack,
		},
		MultiMarker: "/",
		MultiGroup:  RaceMultiRacial,
		Fallback:    RaceOther,
	}
}

// Normalize lower-cases the label and applies the separator and synonym rules
func (m *RaceMapper) Normalize(raw string) string {
	label := strings.ToLower(raw)
	for _, r := range m.Separators {
		label = strings.ReplaceAll(label, r.From, r.To)
	}
	for _, r := range m.Synonyms {
		label = strings.ReplaceAll(label, r.From, r.To)
	}
	return label
}

// Group returns the analysis group of a raw label
func (m *RaceMapper) Group(raw string) string {
	label := m.Normalize(raw)
	if g, ok := m.Groups[label]; ok {
		return g
	}
	if m.MultiMarker != "" && strings.Contains(label, m.MultiMarker) {
		return m.MultiGroup
	}
	return m.Fallback
}
