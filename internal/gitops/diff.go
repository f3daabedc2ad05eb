package gitops

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// TextDiff computes a patch-text diff between two file contents. The result
// can be applied to base with ApplyTextDiff to reproduce head.
func TextDiff(base, head string) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(base, head)
	return dmp.PatchToText(patches)
}

// ApplyTextDiff applies a patch produced by TextDiff. It fails when any hunk
// cannot be placed.
func ApplyTextDiff(base, patchText string) (string, error) {
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return "", fmt.Errorf("parse patch: %w", err)
	}
	result, applied := dmp.PatchApply(patches, base)
	for i, ok := range applied {
		if !ok {
			return "", fmt.Errorf("hunk %d did not apply", i)
		}
	}
	return result, nil
}

// PrettyDiff renders a compact, human-readable diff between two contents.
// Used by file-mutation tools to report what changed.
func PrettyDiff(base, head string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(base, head, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var out string
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			out += "+" + d.Text
		case diffmatchpatch.DiffDelete:
			out += "-" + d.Text
		}
	}
	return out
}
