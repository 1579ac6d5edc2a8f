package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/oeis/internal/oeis"
)

// ExportFormat selects the rendering used by ExportSequence.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportCSV      ExportFormat = "csv"
	ExportText     ExportFormat = "txt"
	ExportMarkdown ExportFormat = "markdown"
	ExportBFile    ExportFormat = "bfile"
)

// ExportFormats lists the supported formats.
func ExportFormats() []ExportFormat {
	return []ExportFormat{ExportJSON, ExportCSV, ExportText, ExportMarkdown, ExportBFile}
}

// ParseExportFormat maps a user-supplied name onto a format.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return ExportJSON, nil
	case "csv":
		return ExportCSV, nil
	case "txt", "text":
		return ExportText, nil
	case "md", "markdown":
		return ExportMarkdown, nil
	case "bfile", "b-file":
		return ExportBFile, nil
	}
	return "", fmt.Errorf("unknown export format %q (valid: json, csv, txt, markdown, bfile)", s)
}

// ExportSequence renders seq in the given format. For ExportBFile the
// downloaded entries are used when present, otherwise the data field.
func ExportSequence(seq oeis.Sequence, format ExportFormat, bfile []oeis.BFileEntry) (string, error) {
	switch format {
	case ExportJSON:
		b, err := json.MarshalIndent(seq, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding sequence: %w", err)
		}
		return string(b) + "\n", nil
	case ExportCSV:
		return exportCSV(seq), nil
	case ExportText:
		return exportText(seq), nil
	case ExportMarkdown:
		return exportMarkdown(seq), nil
	case ExportBFile:
		return exportBFile(seq, bfile), nil
	}
	return "", fmt.Errorf("unknown export format %q", format)
}

func exportCSV(seq oeis.Sequence) string {
	var sb strings.Builder
	sb.WriteString("A-number,Index,Value\n")
	for i, v := range seq.Values() {
		fmt.Fprintf(&sb, "%s,%d,%s\n", seq.ANumber(), i, v)
	}
	return sb.String()
}

func exportText(seq oeis.Sequence) string {
	var sb strings.Builder
	title := seq.ANumber() + ": " + seq.Name
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("=", len(title)) + "\n\n")

	fmt.Fprintf(&sb, "Offset: %s\n", seq.Offset)
	fmt.Fprintf(&sb, "Keywords: %s\n", seq.Keyword)
	if seq.Author != "" {
		fmt.Fprintf(&sb, "Author: %s\n", seq.Author)
	}
	sb.WriteString("\nData:\n" + seq.Data + "\n\n")

	section := func(name string, lines []string) {
		if len(lines) == 0 {
			return
		}
		sb.WriteString(name + ":\n")
		for _, l := range lines {
			sb.WriteString("  " + l + "\n")
		}
		sb.WriteString("\n")
	}
	section("Comments", seq.Comment)
	section("Formulas", seq.Formula)
	section("References", seq.Reference)
	section("Links", seq.Link)
	section("Cross-references", seq.Xref)

	sb.WriteString("Source: " + seq.URL() + "\n")
	return sb.String()
}

func exportMarkdown(seq oeis.Sequence) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s: %s\n\n", seq.ANumber(), seq.Name)
	sb.WriteString("## Sequence Data\n\n`" + seq.Data + "`\n\n")

	sb.WriteString("## Metadata\n\n")
	fmt.Fprintf(&sb, "- **A-number**: %s\n", seq.ANumber())
	fmt.Fprintf(&sb, "- **Offset**: %s\n", seq.Offset)
	fmt.Fprintf(&sb, "- **Keywords**: %s\n", seq.Keyword)
	if seq.Author != "" {
		fmt.Fprintf(&sb, "- **Author**: %s\n", seq.Author)
	}
	if seq.Created != "" {
		fmt.Fprintf(&sb, "- **Created**: %s\n", seq.Created)
	}
	if seq.Time != "" {
		fmt.Fprintf(&sb, "- **Last Modified**: %s\n", seq.Time)
	}
	sb.WriteString("\n")

	if len(seq.Comment) > 0 {
		sb.WriteString("## Comments\n\n")
		for _, c := range seq.Comment {
			sb.WriteString(c + "\n\n")
		}
	}
	list := func(name string, lines []string) {
		if len(lines) == 0 {
			return
		}
		sb.WriteString("## " + name + "\n\n")
		for _, l := range lines {
			sb.WriteString("- " + l + "\n")
		}
		sb.WriteString("\n")
	}
	list("Formulas", seq.Formula)

	code := func(heading, lang string, blocks []string) {
		if len(blocks) == 0 {
			return
		}
		sb.WriteString(heading + "\n\n")
		for _, b := range blocks {
			sb.WriteString("```" + lang + "\n" + b + "\n```\n\n")
		}
	}
	code("## Examples", "", seq.Example)
	if len(seq.Maple)+len(seq.Mathematica)+len(seq.Program) > 0 {
		sb.WriteString("## Code\n\n")
		code("### Maple", "maple", seq.Maple)
		code("### Mathematica", "mathematica", seq.Mathematica)
		code("### Other Programs", "", seq.Program)
	}

	list("References", seq.Reference)
	list("Links", seq.Link)
	list("Cross-references", seq.Xref)

	sb.WriteString("---\n\nSource: " + seq.URL() + "\n")
	return sb.String()
}

func exportBFile(seq oeis.Sequence, entries []oeis.BFileEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s - %s\n", seq.ANumber(), seq.Name)
	if len(entries) > 0 {
		for _, e := range entries {
			fmt.Fprintf(&sb, "%d %s\n", e.Index, e.Value)
		}
		return sb.String()
	}
	start, _ := seq.ParseOffset()
	for i, v := range seq.Values() {
		fmt.Fprintf(&sb, "%d %s\n", start+i, v)
	}
	return sb.String()
}

// ExportCurrent renders the current sequence, including its b-file when one
// has been downloaded.
func (s *State) ExportCurrent(format ExportFormat) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return "", fmt.Errorf("no sequence selected")
	}
	var entries []oeis.BFileEntry
	if s.extendedNumber == s.current.Number {
		entries = s.extended
	}
	return ExportSequence(*s.current, format, entries)
}
