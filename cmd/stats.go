package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-thread-digest/filter"
	"github.com/dhcgn/mail-thread-digest/stats"
)

const (
	categoryStatus     = "Date Status"
	categoryYear       = "Year"
	categoryUnparsed   = "Unparsed Date Text"
	categoryThreadRows = "Thread Rows"
)

var statsCategories = []string{categoryStatus, categoryYear, categoryUnparsed, categoryThreadRows}

func newStatsCmd(a *app) *cobra.Command {
	var (
		dataPath  string
		reportDir string
		topN      int
		filters   filter.Options
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Analyse a thread dataset and show date extraction statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filter.New(filters)
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			docs, err := loadThreads(dataPath)
			if err != nil {
				return err
			}

			counter := make(map[string]map[string]int)
			for _, c := range statsCategories {
				counter[c] = make(map[string]int)
			}

			extractor := a.extractor()
			rowCount := 0
			skippedCount := 0
			for _, doc := range docs {
				if !f.AllowsDocument(doc) {
					skippedCount++
					continue
				}
				rowCount++

				date := extractor.Extract(doc.EmailsText)
				counter[categoryStatus][date.Status.String()]++
				counter[categoryThreadRows][doc.ThreadID]++
				switch {
				case date.Known():
					counter[categoryYear][strconv.Itoa(date.Time.Year())]++
				case date.Source != "":
					counter[categoryUnparsed][date.Source]++
				}
			}

			out := cmd.OutOrStdout()
			printStats(out, f, counter, rowCount, skippedCount, topN)

			if reportDir != "" {
				if err := saveCSVReports(counter, statsCategories, reportDir, 1000); err != nil {
					return fmt.Errorf("error saving CSV reports: %w", err)
				}
				fmt.Fprintf(out, "\nReports saved to directory: %s\n", reportDir)
			}
			return nil
		},
	}

	addDataFlag(cmd, &dataPath)
	cmd.Flags().StringVarP(&reportDir, "output", "o", "", "Output directory for CSV reports")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	addFilterFlags(cmd, &filters)
	return cmd
}

func printStats(w io.Writer, f *filter.Filter, counter map[string]map[string]int, rowCount, skippedCount, topN int) {
	total := rowCount + skippedCount
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(skippedCount) / float64(total) * 100
	}
	fmt.Fprintf(w, "Processed %d rows in %d threads (skipped %d by filters, %.2f%%)\n\n",
		rowCount, len(counter[categoryThreadRows]), skippedCount, filterPercent)

	filterStats := f.GetStats()
	sections := []struct {
		title    string
		patterns []string
		hits     map[string]int
	}{
		{"Include Header Filters", filterStats.IncludeHeaderPatterns, filterStats.IncludeHeaderHits},
		{"Include Body Filters", filterStats.IncludeBodyPatterns, filterStats.IncludeBodyHits},
		{"Exclude Header Filters", filterStats.ExcludeHeaderPatterns, filterStats.ExcludeHeaderHits},
		{"Exclude Body Filters", filterStats.ExcludeBodyPatterns, filterStats.ExcludeBodyHits},
	}
	hasFilterStats := false
	for _, s := range sections {
		if len(s.patterns) == 0 {
			continue
		}
		hasFilterStats = true
		fmt.Fprintf(w, "%s:\n", s.title)
		printFilterHits(w, s.patterns, s.hits)
		fmt.Fprintln(w)
	}
	if hasFilterStats {
		fmt.Fprintln(w, "---")
		fmt.Fprintln(w)
	}

	for _, category := range statsCategories {
		fmt.Fprintf(w, "Top %d %s:\n", topN, category)
		stats.PrettyPrintTop(w, counter[category], topN)
		fmt.Fprintln(w)
	}
}

func saveCSVReports(counter map[string]map[string]int, categories []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, category := range categories {
		counts := counter[category]

		filename := fmt.Sprintf("report_%s.csv", normalizeCategoryName(category))
		file, err := os.Create(filepath.Join(dir, filename))
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)
		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}

		type pair struct {
			Key   string
			Value int
		}
		var pairs []pair
		for k, v := range counts {
			pairs = append(pairs, pair{k, v})
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].Value != pairs[j].Value {
				return pairs[i].Value > pairs[j].Value
			}
			return pairs[i].Key < pairs[j].Key
		})

		for i := 0; i < limit && i < len(pairs); i++ {
			if err := writer.Write([]string{pairs[i].Key, strconv.Itoa(pairs[i].Value)}); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()

		if err := writer.Error(); err != nil {
			return err
		}
	}

	return nil
}

func normalizeCategoryName(category string) string {
	name := strings.ToLower(category)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func printFilterHits(w io.Writer, patterns []string, hits map[string]int) {
	type pair struct {
		Pattern string
		Count   int
	}
	var pairs []pair
	for _, pattern := range patterns {
		pairs = append(pairs, pair{pattern, hits[pattern]})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Pattern < pairs[j].Pattern
	})

	for _, p := range pairs {
		mark := "✗"
		if p.Count > 0 {
			mark = "✓"
		}
		fmt.Fprintf(w, "  %s %s: %d hits\n", mark, p.Pattern, p.Count)
	}
}
