package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kalambet/oeis/internal/oeis"
)

// outputFormat selects how search, fetch and random print their results.
type outputFormat string

const (
	formatPlain  outputFormat = "plain"
	formatJSON   outputFormat = "json"
	formatCSV    outputFormat = "csv"
	formatTSV    outputFormat = "tsv"
	formatValues outputFormat = "values"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case formatPlain, formatJSON, formatCSV, formatTSV, formatValues:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want plain, json, csv, tsv or values)", s)
}

const previewTerms = 12

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeSearch prints one page of search results. Non-plain, non-JSON
// formats list A-numbers only, with names when verbose.
func writeSearch(w io.Writer, query string, resp oeis.Response, limit int, format outputFormat, verbose bool) error {
	results := resp.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	switch format {
	case formatJSON:
		return writeJSON(w, oeis.Response{Count: resp.Count, Results: results})
	case formatPlain:
		fmt.Fprintf(w, "Results for '%s': %s found\n",
			colorize(colorCyan, query), colorize(colorBold+colorYellow, fmt.Sprint(resp.Count)))
		width := terminalWidth()
		for i, seq := range results {
			writeSummary(w, i+1, seq, width)
		}
	default:
		for _, seq := range results {
			if verbose {
				fmt.Fprintf(w, "%s\t%s\n", seq.ANumber(), seq.Name)
			} else {
				fmt.Fprintln(w, seq.ANumber())
			}
		}
	}
	return nil
}

func writeSummary(w io.Writer, index int, seq oeis.Sequence, width int) {
	head := fmt.Sprintf("%2d. %s - ", index, seq.ANumber())
	name := truncate(seq.Name, width-len(head))
	fmt.Fprintf(w, "%s %s %s %s\n",
		colorize(colorDim, fmt.Sprintf("%2d.", index)),
		colorize(colorBold+colorCyan, seq.ANumber()),
		colorize(colorDim, "-"),
		name)

	values := seq.Values()
	if len(values) > previewTerms {
		values = values[:previewTerms]
	}
	fmt.Fprintf(w, "    %s\n", colorize(colorGreen, strings.Join(values, ", ")))
	if seq.Keyword != "" {
		fmt.Fprintf(w, "    %s: %s\n", colorize(colorYellow, "keywords"), colorize(colorDim, seq.Keyword))
	}
	fmt.Fprintln(w)
}

// writeSequence prints a single sequence. In quiet mode plain prints only
// the data line and csv/tsv omit their header.
func writeSequence(w io.Writer, seq oeis.Sequence, format outputFormat, quiet bool) error {
	switch format {
	case formatJSON:
		return writeJSON(w, seq)
	case formatValues:
		for _, v := range seq.Values() {
			fmt.Fprintln(w, v)
		}
	case formatCSV:
		if !quiet {
			fmt.Fprintln(w, "index,value")
		}
		for i, v := range seq.Values() {
			fmt.Fprintf(w, "%d,%s\n", i, v)
		}
	case formatTSV:
		if !quiet {
			fmt.Fprintln(w, "# index\tvalue")
		}
		for i, v := range seq.Values() {
			fmt.Fprintf(w, "%d\t%s\n", i, v)
		}
	default:
		if quiet {
			fmt.Fprintln(w, seq.Data)
			return nil
		}
		writeDetail(w, seq)
	}
	return nil
}

func writeDetail(w io.Writer, seq oeis.Sequence) {
	fmt.Fprintf(w, "%s %s %s\n",
		colorize(colorBold+colorCyan, seq.ANumber()),
		colorize(colorDim, "-"),
		colorize(colorBold, seq.Name))
	fmt.Fprintf(w, "%s %s %s %s: %s\n",
		colorize(colorYellow, "Offset:"), seq.Offset,
		colorize(colorDim, "|"),
		colorize(colorYellow, "Keywords"), colorize(colorDim, seq.Keyword))
	if seq.Author != "" {
		fmt.Fprintf(w, "%s: %s\n", colorize(colorYellow, "Author"), seq.Author)
	}
	if seq.Data != "" {
		fmt.Fprintf(w, "%s: %s\n", colorize(colorYellow, "Data"), colorize(colorGreen, seq.Data))
	}
	if len(seq.Comment) > 0 {
		fmt.Fprintf(w, "%s:\n", colorize(colorYellow, "Comments"))
		for _, c := range seq.Comment {
			fmt.Fprintf(w, "  %s %s\n", colorize(colorDim, "-"), c)
		}
	}
	fmt.Fprintln(w)
}
