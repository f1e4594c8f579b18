package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/aluiziolira/go-stock-sync/config"
	"github.com/aluiziolira/go-stock-sync/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func printSummary(w io.Writer, res models.RunResult, duration time.Duration, c *config.Config) {
	sweep := "skipped"
	if !res.SweepSkip {
		sweep = fmt.Sprintf("%d deleted, %d kept", res.Swept, res.Kept)
		if res.SweepErrors > 0 {
			sweep += fmt.Sprintf(", %d errors", res.SweepErrors)
		}
	}

	rows := [][]string{
		{"Run", res.RunID},
		{"Records", strconv.Itoa(res.Records)},
		{"Created", strconv.Itoa(res.Created)},
		{"Merged", strconv.Itoa(res.Merged)},
		{"Rejected", strconv.Itoa(res.Rejected)},
		{"Failed", strconv.Itoa(res.Failed)},
		{"Thumbnails generated", strconv.Itoa(res.Generated)},
		{"Thumbnail cache hits", strconv.Itoa(res.CacheHits)},
		{"Thumbnail errors", strconv.Itoa(res.ThumbErrors)},
		{"Sweep", sweep},
		{"Duration", duration.Round(time.Millisecond).String()},
	}
	if c != nil {
		rows = append(rows, []string{"Content dir", c.ContentDir})
		if c.Report.File != "" {
			rows = append(rows, []string{"Report", c.Report.File})
		}
	}
	fmt.Fprintln(w, renderTable([]string{"Sync", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(res.Missing) == 0 {
		return
	}
	missing := make([][]string, 0, len(res.Missing))
	for _, mm := range res.Missing {
		missing = append(missing, []string{mm.Model, mm.VIN})
	}
	fmt.Fprintln(w, "\nModels missing from the image mapping:")
	fmt.Fprintln(w, renderTable([]string{"Model", "VIN"}, missing, nil))
}
