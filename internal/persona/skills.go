package persona

import "strings"

// matchScore scores text against one skill: each matched keyword
// contributes 0.3, each matched regex 0.4, each matched intent tag 0.5,
// summed and capped at 1.0 before any persona proficiency bonus is
// applied. A skill with no signals defined never matches.
func (s *Skill) matchScore(text string, intentTags map[string]bool) (float64, bool) {
	s.compilePatterns()

	lower := strings.ToLower(text)
	var score float64
	matched := false

	for _, kw := range s.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			score += 0.3
			matched = true
		}
	}
	for _, re := range s.compiled {
		if re.MatchString(text) {
			score += 0.4
			matched = true
		}
	}
	for _, tag := range s.IntentTags {
		if intentTags[tag] {
			score += 0.5
			matched = true
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, matched
}

// RouteSkill scores text against every registered skill and returns the
// single best match whose score, after the persona proficiency bonus,
// exceeds 0.7. proficiency maps skill name to the effective persona's
// success rate for it; bonus is added only when that rate meets
// proficiencyThreshold.
func (r *Router) RouteSkill(text string, intentTags map[string]bool, proficiency map[string]float64) (Match, bool) {
	const proficiencyThreshold = 0.6
	const proficiencyBonus = 0.15

	var best Match
	var bestScore float64
	found := false

	for _, skill := range r.skills {
		score, matched := skill.matchScore(text, intentTags)
		if !matched {
			continue
		}
		if rate, ok := proficiency[skill.Name]; ok && rate >= proficiencyThreshold {
			score += proficiencyBonus
			if score > 1.0 {
				score = 1.0
			}
		}
		if score > 0.7 && score > bestScore {
			best = Match{Name: skill.Name, Description: skill.Description, Score: score}
			bestScore = score
			found = true
		}
	}

	return best, found
}
