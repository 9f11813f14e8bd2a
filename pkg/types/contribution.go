package types

import "time"

// DefaultContributorAgent is recorded when a request carries no user agent.
const DefaultContributorAgent = "Unknown"

// Questions holds the up-to-three survey questions defined by a lineage root.
// A nil entry means the question was not set.
type Questions struct {
	Q1 *string `json:"q1"`
	Q2 *string `json:"q2"`
	Q3 *string `json:"q3"`
}

// NewQuestions builds Questions from plain strings. Empty strings become nil.
func NewQuestions(q1, q2, q3 string) Questions {
	return Questions{Q1: optional(q1), Q2: optional(q2), Q3: optional(q3)}
}

// Empty reports whether no question is set.
func (q Questions) Empty() bool {
	return q.Q1 == nil && q.Q2 == nil && q.Q3 == nil
}

// Answers holds a contributor's answers, positionally matching the root's
// questions. Unanswered entries are the empty string.
type Answers struct {
	A1 string `json:"a1"`
	A2 string `json:"a2"`
	A3 string `json:"a3"`
}

// Location is an optional latitude/longitude pair attached to a contribution.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the coordinates are within range.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return ErrInvalidLocation
	}
	return nil
}

// Contribution is one node in a lineage. Every field is immutable once the
// store has created it.
type Contribution struct {
	ID               int64     `json:"id"`
	ShareToken       string    `json:"share_token"`
	ParentID         *int64    `json:"parent_contribution_id"`
	LineageRootID    int64     `json:"lineage_root_id"`
	ImageRef         string    `json:"image_filename"`
	Description      string    `json:"image_description"`
	Prompt           *string   `json:"image_prompt,omitempty"`
	Questions        Questions `json:"survey_questions"`
	Answers          Answers   `json:"answers"`
	ContributorAgent string    `json:"contributor_user_agent"`
	Location         *Location `json:"location,omitempty"`
	CreatedAt        time.Time `json:"timestamp"`
}

// IsRoot reports whether the contribution starts a lineage.
func (c *Contribution) IsRoot() bool {
	return c.ParentID == nil
}

// NewContribution is the candidate record passed to the store's Create.
// LineageRootID is nil for a new root; the store then assigns the new ID.
// For a child it carries the parent's lineage root.
type NewContribution struct {
	ShareToken       string
	ParentID         *int64
	LineageRootID    *int64
	ImageRef         string
	Description      string
	Prompt           *string
	Questions        Questions
	Answers          Answers
	ContributorAgent string
	Location         *Location
}

// Validate checks the candidate before it reaches storage.
func (n *NewContribution) Validate() error {
	if n.ShareToken == "" {
		return ErrInvalidToken
	}
	if n.ImageRef == "" {
		return ErrMissingImage
	}
	if (n.ParentID == nil) != (n.LineageRootID == nil) {
		return ErrInvalidLinkage
	}
	if n.ParentID != nil && (n.Prompt != nil || !n.Questions.Empty()) {
		return ErrRootOnlyField
	}
	if n.Location != nil {
		if err := n.Location.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
