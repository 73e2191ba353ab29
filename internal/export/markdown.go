package export

import (
	"fmt"
	"strings"
)

// RenderTranscriptMarkdown renders a transcript as a Markdown report.
func RenderTranscriptMarkdown(data TemplateData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", data.SessionName)
	fmt.Fprintf(&b, "workspace %s | hosted by %s | %s to %s | %d edits, %d conflicts\n\n",
		data.WorkspaceID, data.Host,
		data.StartedAt.Format("Jan 2, 2006 15:04"), data.EndedAt.Format("15:04 MST"),
		data.Edits, data.ConflictsRun)

	b.WriteString("## Participants\n\n")
	for _, p := range data.Participants {
		fmt.Fprintf(&b, "- %s (%s)\n", p.Name, strings.ToLower(p.Role))
	}
	b.WriteString("\n")

	if len(data.Operations) > 0 {
		b.WriteString("## Edit Log\n\n")
		b.WriteString("| Time | Author | File | Kind | Position | Text |\n")
		b.WriteString("|------|--------|------|------|----------|------|\n")
		for _, op := range data.Operations {
			text := escapeCell(op.Text)
			if op.Superseded {
				text = "~~" + text + "~~"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d:%d | %s |\n",
				op.At.Format("15:04:05"), op.Author, op.FileID,
				strings.ToLower(op.Kind), op.Line, op.Column, text)
		}
		b.WriteString("\n")
	}

	if len(data.Comments) > 0 {
		b.WriteString("## Comments\n\n")
		for _, c := range data.Comments {
			fmt.Fprintf(&b, "**%s** on `%s:%d` _%s, %s_\n\n%s\n\n",
				c.Author, c.FileID, c.Line,
				strings.ToLower(c.Kind), strings.ToLower(c.Status), c.Body)
			for _, r := range c.Replies {
				fmt.Fprintf(&b, "> **%s**: %s\n\n", r.Author, r.Body)
			}
		}
	}

	if len(data.Conflicts) > 0 {
		b.WriteString("## Conflicts\n\n")
		for _, cf := range data.Conflicts {
			line := fmt.Sprintf("- `%s` %s (%s)", cf.FileID, strings.ToLower(cf.Status), strings.ToLower(cf.Strategy))
			if cf.ResolvedBy != "" {
				line += " by " + cf.ResolvedBy
			}
			if cf.Justification != "" {
				line += ": " + cf.Justification
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// escapeCell keeps multi-line payloads from breaking the Markdown table.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "|", "\\|")
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}
