package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

var errNoSessions = errors.New("no sessions found in JSON")

// readSessions loads every session stored in jsonFile.
func readSessions(jsonFile string) ([]FullReport, error) {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		return nil, fmt.Errorf("reading JSON file %q: %w", jsonFile, err)
	}
	var sessions []FullReport
	if len(data) == 0 {
		return sessions, nil
	}
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshalling JSON %q: %w", jsonFile, err)
	}
	return sessions, nil
}

// appendSessions adds sessions to the ones already stored in jsonFile.
func appendSessions(jsonFile string, sessions []FullReport) error {
	previous, err := readSessions(jsonFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	updated := append(previous, sessions...)
	data, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling JSON: %w", err)
	}
	return os.WriteFile(jsonFile, data, 0644)
}

// outputMarkdownTable writes the last session of jsonFile as a Markdown table,
// fastest implementation first.
func outputMarkdownTable(w io.Writer, jsonFile string) error {
	sessions, err := readSessions(jsonFile)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return errNoSessions
	}
	lastSession := sessions[len(sessions)-1]

	implMetaMap := make(map[string]Implementation[int])
	for _, impl := range getImplementations() {
		implMetaMap[impl.name] = impl
	}

	type tableRow struct {
		implementation string
		pkgName        string
		features       string
		author         string
		concurrency    string
		throughput     float64
	}
	var rows []tableRow
	for _, bench := range lastSession.Benchmarks {
		meta := implMetaMap[bench.Implementation]
		rows = append(rows, tableRow{
			implementation: bench.Implementation,
			pkgName:        meta.pkgName,
			features:       strings.Join(meta.features, ", "),
			author:         strings.Join(meta.authors, ", "),
			concurrency:    fmt.Sprintf("%dP/%dC", bench.NumProducers, bench.NumConsumers),
			throughput:     bench.Throughput,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].throughput > rows[j].throughput
	})

	fmt.Fprintln(w, "## Last Session Benchmark Summary")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Implementation           | Package           | Features                    | Author                      | Concurrency | Throughput (msgs/sec) |")
	fmt.Fprintln(w, "|--------------------------|-------------------|-----------------------------|-----------------------------|-------------|-----------------------|")
	for _, r := range rows {
		fmt.Fprintf(w, "| %-24s | %-17s | %-27s | %-27s | %-11s | %21.0f |\n",
			r.implementation, r.pkgName, r.features, r.author, r.concurrency, r.throughput)
	}
	return nil
}
