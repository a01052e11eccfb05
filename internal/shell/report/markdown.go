package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/shipmap/internal/engine"
)

// renderMarkdown produces the human readable deployment mapping summary.
// Output is fully determined by the report so unchanged trees produce
// byte-identical files except for the generation timestamp line.
func renderMarkdown(r *engine.Report) string {
	var b strings.Builder

	b.WriteString("# Deployment Mapping\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- Root: `%s`\n", r.Root)
	fmt.Fprintf(&b, "- Tree checksum: `%s`\n", r.TreeChecksum)
	fmt.Fprintf(&b, "- Artifacts: %d\n", r.ArtifactCount)
	fmt.Fprintf(&b, "- Conflicts: %d\n", len(r.Conflicts))
	fmt.Fprintf(&b, "- Recommendations: %d\n\n", len(r.Recommendations))

	b.WriteString("## Artifacts by Category\n\n")
	if len(r.Map.Categories) == 0 {
		b.WriteString("No deployment artifacts found.\n\n")
	}
	for _, c := range r.Map.Categories {
		fmt.Fprintf(&b, "### %s\n\n", c.Name)
		for _, t := range c.Targets {
			fmt.Fprintf(&b, "- `%s` (environment: %s)\n", t.Dir, t.Environment)
			for _, a := range t.Artifacts {
				names := make([]string, 0, len(a.Services))
				for _, s := range a.Services {
					names = append(names, s.Name)
				}
				fmt.Fprintf(&b, "  - `%s`: %s\n", a.Path, strings.Join(names, ", "))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Conflicts\n\n")
	if len(r.Conflicts) == 0 {
		b.WriteString("None detected.\n\n")
	}
	for _, c := range r.Conflicts {
		fmt.Fprintf(&b, "- **%s** `%s` [%s]: %s\n", c.Severity, c.ID, c.Kind, c.Description)
		for _, inv := range c.Involved {
			if inv.ServiceName != "" {
				fmt.Fprintf(&b, "  - `%s` / %s\n", inv.ArtifactPath, inv.ServiceName)
			} else {
				fmt.Fprintf(&b, "  - `%s`\n", inv.ArtifactPath)
			}
		}
	}
	if len(r.Conflicts) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	if len(r.Recommendations) == 0 {
		b.WriteString("None.\n\n")
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "- (%s) %s: %s\n", rec.Confidence, strings.Join(rec.ConflictIDs, ", "), rec.ProposedChange)
		if rec.Rationale != "" {
			fmt.Fprintf(&b, "  - rationale: %s\n", rec.Rationale)
		}
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Deployment Plans\n\n")
	if len(r.Plans) == 0 {
		b.WriteString("No plans emitted.\n")
	}
	for _, plan := range r.Plans {
		names := make([]string, 0, len(plan.Services))
		for name := range plan.Services {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "### %s\n\n", plan.Environment)
		fmt.Fprintf(&b, "%d services: %s\n\n", len(names), strings.Join(names, ", "))
	}

	if len(r.ParseWarnings) > 0 {
		b.WriteString("## Parse Warnings\n\n")
		for _, w := range r.ParseWarnings {
			fmt.Fprintf(&b, "- `%s`: %s\n", w.Path, w.Message)
		}
	}

	return b.String()
}
