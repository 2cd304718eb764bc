package gazetteer

import (
	"math"
	"strings"
)

// Score components.
const (
	scoreExact         = 1000
	scoreAltExact      = 950
	scorePrefix        = 700
	scoreAltContains   = 600
	scoreContains      = 500
	bonusPopulated     = 40
	bonusAdmin         = 60
	bonusCapital       = 80
	bonusSeat          = 60
	bonusAdmin1        = 70
	populationBonusCap = 200
	populationWeight   = 30
)

// ScoreRow ranks a matching row against query; higher is better.
//
// The base is the best of the name and ASCII-name field scores (exact 1000,
// prefix 700, substring 500) and the alternate-name score (whole
// comma-delimited token 950, otherwise substring 600). Feature bonuses are
// additive and a population bonus of min(200, 30*log10(pop+1)) is added for
// populated rows.
func ScoreRow(row Row, query string) float64 {
	score := math.Max(scoreField(row.Name, query), scoreField(row.ASCIIName, query))
	if row.AlternateNames != "" {
		switch {
		case containsToken(row.AlternateNames, query):
			score = math.Max(score, scoreAltExact)
		case strings.Contains(row.AlternateNames, query):
			score = math.Max(score, scoreAltContains)
		}
	}

	switch row.FeatureClass {
	case ClassPopulated:
		score += bonusPopulated
	case ClassAdmin:
		score += bonusAdmin
	}
	switch row.FeatureCode {
	case CodeCapital:
		score += bonusCapital
	case CodeSeat:
		score += bonusSeat
	case CodeAdmin1:
		score += bonusAdmin1
	}

	if row.Population > 0 {
		score += math.Min(populationBonusCap, math.Log10(float64(row.Population)+1)*populationWeight)
	}
	return score
}

func scoreField(value, query string) float64 {
	switch {
	case value == "":
		return 0
	case value == query:
		return scoreExact
	case strings.HasPrefix(value, query):
		return scorePrefix
	case strings.Contains(value, query):
		return scoreContains
	}
	return 0
}

// containsToken reports whether query occurs in the comma-separated list
// bounded on both sides by a comma or the end of the list.
func containsToken(list, query string) bool {
	for from := 0; from <= len(list); {
		i := strings.Index(list[from:], query)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(query)
		if (start == 0 || list[start-1] == ',') && (end == len(list) || list[end] == ',') {
			return true
		}
		from = start + 1
	}
	return false
}
