package pxtorem

import (
	"slices"
	"strings"
)

// propMatcher decides which declarations are converted. Any negative match
// wins over positive ones.
type propMatcher struct {
	all                                   bool
	exact, prefix, suffix, contains       []string
	notExact, notPrefix, notSuffix, notIn []string
}

func compilePropList(patterns []string) (propMatcher, error) {
	var m propMatcher
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))

		negated := strings.HasPrefix(p, "!")
		body := strings.TrimPrefix(p, "!")
		if body == "" {
			return propMatcher{}, optionsError("empty property pattern %q", p)
		}

		var (
			list *[]string
			name string
		)
		stars := strings.Count(body, "*")
		switch {
		case body == "*":
			if negated {
				return propMatcher{}, optionsError("property pattern %q excludes everything", p)
			}
			m.all = true
			continue
		case stars == 0:
			list, name = pick(negated, &m.exact, &m.notExact), body
		case stars == 2 && len(body) > 2 && body[0] == '*' && body[len(body)-1] == '*':
			list, name = pick(negated, &m.contains, &m.notIn), body[1:len(body)-1]
		case stars == 1 && body[0] == '*':
			list, name = pick(negated, &m.suffix, &m.notSuffix), body[1:]
		case stars == 1 && body[len(body)-1] == '*':
			list, name = pick(negated, &m.prefix, &m.notPrefix), body[:len(body)-1]
		default:
			return propMatcher{}, optionsError("unsupported property pattern %q", p)
		}
		*list = append(*list, name)
	}
	return m, nil
}

func pick(negated bool, positive, negative *[]string) *[]string {
	if negated {
		return negative
	}
	return positive
}

func (m propMatcher) match(prop string) bool {
	prop = strings.ToLower(prop)
	return m.positive(prop) && !m.negative(prop)
}

func (m propMatcher) positive(prop string) bool {
	return m.all ||
		slices.Contains(m.exact, prop) ||
		slices.ContainsFunc(m.prefix, func(s string) bool { return strings.HasPrefix(prop, s) }) ||
		slices.ContainsFunc(m.suffix, func(s string) bool { return strings.HasSuffix(prop, s) }) ||
		slices.ContainsFunc(m.contains, func(s string) bool { return strings.Contains(prop, s) })
}

func (m propMatcher) negative(prop string) bool {
	return slices.Contains(m.notExact, prop) ||
		slices.ContainsFunc(m.notPrefix, func(s string) bool { return strings.HasPrefix(prop, s) }) ||
		slices.ContainsFunc(m.notSuffix, func(s string) bool { return strings.HasSuffix(prop, s) }) ||
		slices.ContainsFunc(m.notIn, func(s string) bool { return strings.Contains(prop, s) })
}
