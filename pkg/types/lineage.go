package types

// Lineage is a resolved chain of contributions ordered root to tip, together
// with the metadata the root defines for the whole chain.
type Lineage struct {
	// Contributions[0] is the root, or the deepest reachable ancestor when
	// Truncated is set. The last element is the contribution the lineage was
	// resolved from.
	Contributions []*Contribution `json:"contributions"`
	Prompt        *string         `json:"image_prompt"`
	RootQuestions Questions       `json:"root_questions"`
	Truncated     bool            `json:"truncated"`
}

// Root returns the first contribution of the chain.
func (l *Lineage) Root() *Contribution {
	if len(l.Contributions) == 0 {
		return nil
	}
	return l.Contributions[0]
}

// Tip returns the contribution the lineage was resolved from.
func (l *Lineage) Tip() *Contribution {
	if len(l.Contributions) == 0 {
		return nil
	}
	return l.Contributions[len(l.Contributions)-1]
}

// Depth is the number of contributions in the chain.
func (l *Lineage) Depth() int {
	return len(l.Contributions)
}
