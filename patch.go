package tiller

import (
	"fmt"
	"strings"
)

// PatchFile is one file section of a unified diff.
type PatchFile struct {
	OldPath string // "" for a created file
	NewPath string // "" for a deleted file
	Hunks   []Hunk
}

// Path returns the effective target path of the section.
func (f *PatchFile) Path() string {
	if f.NewPath != "" {
		return f.NewPath
	}
	return f.OldPath
}

// Hunk is one @@ block of a unified diff.
type Hunk struct {
	OldStart, OldLines int
	NewStart, NewLines int
	Lines              []HunkLine
}

// HunkLine is a single context (' '), delete ('-'), or add ('+') line.
type HunkLine struct {
	Op   byte
	Text string
}

// ParsePatch parses a unified diff into per-file hunk lists. Headers other
// than ---/+++/@@ (diff --git, index, mode) are skipped.
func ParsePatch(patch string) ([]PatchFile, error) {
	var files []PatchFile
	var cur *PatchFile

	lines := strings.Split(patch, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- "):
			files = append(files, PatchFile{OldPath: parsePatchPath(line[4:])})
			cur = &files[len(files)-1]
		case strings.HasPrefix(line, "+++ "):
			if cur == nil {
				return nil, fmt.Errorf("patch: +++ without --- at line %d", i+1)
			}
			cur.NewPath = parsePatchPath(line[4:])
		case strings.HasPrefix(line, "@@ "):
			if cur == nil {
				return nil, fmt.Errorf("patch: hunk without file header at line %d", i+1)
			}
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			// The header's line counts bound the body, so a following file
			// section's ---/+++ headers are never consumed as hunk lines.
			oldLeft, newLeft := h.OldLines, h.NewLines
			for i+1 < len(lines) && (oldLeft > 0 || newLeft > 0) {
				body := lines[i+1]
				if len(body) == 0 {
					// blank context line with the leading space trimmed
					h.Lines = append(h.Lines, HunkLine{Op: ' ', Text: ""})
					oldLeft--
					newLeft--
					i++
					continue
				}
				op := body[0]
				if op == '\\' {
					// "\ No newline at end of file"
					i++
					continue
				}
				if op != ' ' && op != '-' && op != '+' {
					break
				}
				if strings.HasPrefix(body, "--- ") || strings.HasPrefix(body, "+++ ") {
					// Section header reached early: the counts were wrong.
					break
				}
				h.Lines = append(h.Lines, HunkLine{Op: op, Text: body[1:]})
				switch op {
				case ' ':
					oldLeft--
					newLeft--
				case '-':
					oldLeft--
				case '+':
					newLeft--
				}
				i++
			}
			cur.Hunks = append(cur.Hunks, h)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("patch: no file sections found")
	}
	return files, nil
}

func parsePatchPath(s string) string {
	s = strings.TrimSpace(s)
	if tab := strings.IndexByte(s, '\t'); tab >= 0 {
		s = s[:tab]
	}
	if s == "/dev/null" {
		return ""
	}
	s = strings.TrimPrefix(s, "a/")
	s = strings.TrimPrefix(s, "b/")
	return s
}

func parseHunkHeader(line string) (Hunk, error) {
	// @@ -oldStart[,oldLines] +newStart[,newLines] @@
	var h Hunk
	body := strings.TrimPrefix(line, "@@ ")
	end := strings.Index(body, " @@")
	if end < 0 {
		return h, fmt.Errorf("patch: malformed hunk header %q", line)
	}
	var err error
	for _, part := range strings.Fields(body[:end]) {
		switch {
		case strings.HasPrefix(part, "-"):
			h.OldStart, h.OldLines, err = parseRange(part[1:])
		case strings.HasPrefix(part, "+"):
			h.NewStart, h.NewLines, err = parseRange(part[1:])
		}
		if err != nil {
			return h, fmt.Errorf("patch: malformed hunk header %q: %w", line, err)
		}
	}
	return h, nil
}

func parseRange(s string) (start, count int, err error) {
	count = 1
	if comma := strings.IndexByte(s, ','); comma >= 0 {
		if _, err = fmt.Sscanf(s[comma+1:], "%d", &count); err != nil {
			return 0, 0, err
		}
		s = s[:comma]
	}
	if _, err = fmt.Sscanf(s, "%d", &start); err != nil {
		return 0, 0, err
	}
	return start, count, nil
}

// ApplyHunk applies h to content. The hunk is first tried at its declared
// OldStart (1-based); when context or delete lines do not match exactly
// there, a single re-anchor pass locates the hunk's first context line in
// the file and retries at that offset. A hunk that still does not match
// returns an error and content is not modified.
func ApplyHunk(content string, h Hunk) (string, error) {
	lines := splitKeepNoEOL(content)
	eol := content == "" || strings.HasSuffix(content, "\n")

	start := h.OldStart - 1
	if start < 0 {
		start = 0
	}
	if out, ok := applyHunkAt(lines, start, h); ok {
		return restoreEOL(out, eol), nil
	}

	// Re-anchor once on the hunk's first context line.
	anchor, ok := firstContextLine(h)
	if !ok {
		return "", fmt.Errorf("patch: hunk at line %d does not match and has no context to re-anchor on", h.OldStart)
	}
	idx := -1
	for i, l := range lines {
		if l == anchor {
			if idx >= 0 {
				return "", fmt.Errorf("patch: hunk at line %d does not match; re-anchor line is ambiguous", h.OldStart)
			}
			idx = i
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("patch: hunk at line %d does not match; re-anchor line not found", h.OldStart)
	}
	// Offset back to where the hunk body starts relative to its anchor.
	offset := 0
	for _, hl := range h.Lines {
		if hl.Op == ' ' || hl.Op == '-' {
			if hl.Op == ' ' && hl.Text == anchor {
				break
			}
			offset++
		}
	}
	if out, ok := applyHunkAt(lines, idx-offset, h); ok {
		return restoreEOL(out, eol), nil
	}
	return "", fmt.Errorf("patch: hunk at line %d does not apply after re-anchor", h.OldStart)
}

func restoreEOL(content string, eol bool) string {
	if eol && content != "" && !strings.HasSuffix(content, "\n") {
		return content + "\n"
	}
	return content
}

// applyHunkAt attempts an exact application of h with its first old line at
// position start (0-based). Reports false when context/delete lines differ.
func applyHunkAt(lines []string, start int, h Hunk) (string, bool) {
	if start < 0 || start > len(lines) {
		return "", false
	}
	out := make([]string, 0, len(lines)+h.NewLines-h.OldLines)
	out = append(out, lines[:start]...)

	pos := start
	for _, hl := range h.Lines {
		switch hl.Op {
		case ' ':
			if pos >= len(lines) || lines[pos] != hl.Text {
				return "", false
			}
			out = append(out, hl.Text)
			pos++
		case '-':
			if pos >= len(lines) || lines[pos] != hl.Text {
				return "", false
			}
			pos++
		case '+':
			out = append(out, hl.Text)
		}
	}
	out = append(out, lines[pos:]...)
	return strings.Join(out, "\n"), true
}

func firstContextLine(h Hunk) (string, bool) {
	for _, hl := range h.Lines {
		if hl.Op == ' ' {
			return hl.Text, true
		}
	}
	return "", false
}

// splitKeepNoEOL splits content into lines without a trailing phantom line
// for content ending in a newline.
func splitKeepNoEOL(content string) []string {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(content, "\n")
	return strings.Split(trimmed, "\n")
}
