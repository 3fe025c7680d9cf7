package gamify

import "sort"

// BadgeRule is one threshold from the badge catalog.
type BadgeRule struct {
	Code      string
	EventType string
	Threshold int
}

// EarnedBadges returns the codes of every rule for eventType whose threshold
// the lifetime count has met, excluding codes already held. Results are ordered
// by ascending threshold so awards land in progression order.
func EarnedBadges(rules []BadgeRule, eventType string, count int, held map[string]bool) []string {
	qualifying := make([]BadgeRule, 0, len(rules))
	for _, rule := range rules {
		if rule.EventType != eventType {
			continue
		}
		if count < rule.Threshold {
			continue
		}
		if held[rule.Code] {
			continue
		}
		qualifying = append(qualifying, rule)
	}
	sort.Slice(qualifying, func(i, j int) bool {
		if qualifying[i].Threshold != qualifying[j].Threshold {
			return qualifying[i].Threshold < qualifying[j].Threshold
		}
		return qualifying[i].Code < qualifying[j].Code
	})
	codes := make([]string, 0, len(qualifying))
	for _, rule := range qualifying {
		codes = append(codes, rule.Code)
	}
	return codes
}
