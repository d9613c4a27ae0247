package validator

import (
	"github.com/roasbeef/revsentry/internal/diffmodel"
	"github.com/roasbeef/revsentry/internal/issue"
)

// FilterStyleIssue implements the MCP-boundary style filter from spec
// section 4.D.6: it runs before an issue from the style reviewer ever
// reaches dedup or the validator, dropping pre-existing style
// complaints the diff did not actually introduce. Non-style issues are
// always kept. The returned reason, when keep is false, is the string
// reported back to the agent explaining the drop.
func FilterStyleIssue(raw issue.RawIssue, file *diffmodel.DiffFile) (keep bool, reason string) {
	if raw.SourceAgent != issue.AgentStyle {
		return true, ""
	}

	if file == nil || len(file.ChangedLines) == 0 {
		return false, "pre-existing: file has no changed lines in this diff"
	}

	if !file.RangeIntersectsChanged(raw.LineStart, raw.LineEnd) {
		return false, "pre-existing: reported range does not intersect the diff"
	}

	if file.IsWhitespaceOnly(raw.LineStart) {
		return false, "whitespace-only change, issue pre-exists"
	}

	return true, ""
}
