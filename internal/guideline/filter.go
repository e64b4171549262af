package guideline

// EligibilityPolicy tunes how FilterPublic treats incomplete guidelines.
type EligibilityPolicy struct {
	// MissingLoginFlagIsPublic admits guidelines that carry no isLoginOnly field.
	// The default excludes them.
	MissingLoginFlagIsPublic bool
}

// IsPublic reports whether a guideline is publicly viewable: isLoginOnly must be the
// boolean false and isRedirectedExternally, when present, must be the boolean false.
// Values of any other type never count as false.
func (p EligibilityPolicy) IsPublic(g Guideline) bool {
	loginOnly, present := g.Bool("isLoginOnly")
	switch {
	case present && loginOnly:
		return false
	case !present && g.Has("isLoginOnly"):
		return false
	case !present && !p.MissingLoginFlagIsPublic:
		return false
	}

	if g.Has("isRedirectedExternally") {
		redirected, ok := g.Bool("isRedirectedExternally")
		if !ok || redirected {
			return false
		}
	}
	return true
}

// FilterPublic keeps the publicly viewable guidelines, preserving order.
func FilterPublic(items []Guideline, policy EligibilityPolicy) []Guideline {
	out := make([]Guideline, 0, len(items))
	for _, g := range items {
		if policy.IsPublic(g) {
			out = append(out, g)
		}
	}
	return out
}
