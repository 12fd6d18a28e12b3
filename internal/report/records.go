package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is one line of NDJSON or CSV output: a single result, or an engine
// failure with no result fields.
type Record struct {
	RunID       string   `json:"run_id"`
	Engine      string   `json:"engine"`
	Rank        int      `json:"rank,omitempty"`
	Title       string   `json:"title,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Engines     []string `json:"engines,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Records flattens a summary in engine order, ranks starting at 1.
func Records(summary Summary) []Record {
	var out []Record
	for _, e := range summary.Engines {
		if e.Error != "" {
			out = append(out, Record{RunID: summary.RunID, Engine: e.Engine, Kind: e.Kind, Error: e.Error})
			continue
		}
		for i, r := range e.Results {
			out = append(out, Record{
				RunID:       summary.RunID,
				Engine:      e.Engine,
				Rank:        i + 1,
				Title:       r.Title,
				URL:         r.URL,
				Description: r.Description,
				Engines:     r.Engines,
			})
		}
	}
	return out
}

// WriteNDJSON writes one JSON object per record.
func WriteNDJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	for _, rec := range Records(summary) {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("report: encode ndjson: %w", err)
		}
	}
	return nil
}

// csvHeaders defines the CSV column order
var csvHeaders = []string{
	"run_id",
	"engine",
	"rank",
	"title",
	"url",
	"description",
	"engines",
	"kind",
	"error",
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, summary Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, rec := range Records(summary) {
		rank := ""
		if rec.Rank > 0 {
			rank = strconv.Itoa(rec.Rank)
		}
		row := []string{
			rec.RunID,
			rec.Engine,
			rank,
			rec.Title,
			rec.URL,
			rec.Description,
			strings.Join(rec.Engines, "|"),
			rec.Kind,
			rec.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}
