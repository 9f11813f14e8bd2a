package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mesh-intelligence/vault/pkg/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printContribution(w io.Writer, c *types.Contribution) {
	kind := "child"
	if c.IsRoot() {
		kind = "root"
	}
	fmt.Fprintf(w, "#%d %s (%s, lineage %d)\n", c.ID, c.ShareToken, kind, c.LineageRootID)
	fmt.Fprintf(w, "  image:       %s\n", c.ImageRef)
	if c.Description != "" {
		fmt.Fprintf(w, "  description: %s\n", c.Description)
	}
	if a := c.Answers; a.A1 != "" || a.A2 != "" || a.A3 != "" {
		fmt.Fprintf(w, "  answers:     %s\n", strings.Join([]string{a.A1, a.A2, a.A3}, " | "))
	}
	if c.Location != nil {
		fmt.Fprintf(w, "  location:    %.5f, %.5f\n", c.Location.Latitude, c.Location.Longitude)
	}
	fmt.Fprintf(w, "  agent:       %s\n", c.ContributorAgent)
	fmt.Fprintf(w, "  created:     %s\n", c.CreatedAt.Format("2006-01-02 15:04:05"))
}

func printLineage(w io.Writer, l *types.Lineage) {
	if l.Prompt != nil {
		fmt.Fprintf(w, "Prompt: %s\n", *l.Prompt)
	}
	q := l.RootQuestions
	for i, s := range []*string{q.Q1, q.Q2, q.Q3} {
		if s != nil {
			fmt.Fprintf(w, "Q%d: %s\n", i+1, *s)
		}
	}
	if l.Truncated {
		fmt.Fprintln(w, "Warning: lineage is truncated; an ancestor is missing")
	}
	for _, c := range l.Contributions {
		printContribution(w, c)
	}
}
