package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"loom/internal/pipeline"
	"loom/internal/segment"
)

// column describes one rendered table column. Numeric columns are
// right-aligned so spans and factors line up.
type column struct {
	title   string
	numeric bool
}

// renderSliceTable shows the per-segment outcome of a finished run.
func renderSliceTable(report *pipeline.Report) string {
	rows := make([][]string, 0, len(report.Slices))
	for _, slice := range report.Slices {
		factor := ""
		if slice.Factor != 0 {
			factor = fmt.Sprintf("%.2f", slice.Factor)
		}
		residual := ""
		if slice.ResidualMs > 0 {
			residual = formatMillis(slice.ResidualMs)
		}
		rows = append(rows, []string{
			fmt.Sprint(slice.Index),
			slice.Adjustment,
			formatMillis(slice.VideoSpanMs),
			factor,
			residual,
		})
	}
	return renderRows([]column{
		{title: "Segment", numeric: true},
		{title: "Adjustment"},
		{title: "Span", numeric: true},
		{title: "Factor", numeric: true},
		{title: "Residual", numeric: true},
	}, rows)
}

// renderRunTable lists recorded runs newest first.
func renderRunTable(runs []segment.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.Status,
			run.SourceVideo,
			run.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return renderRows([]column{
		{title: "Run"},
		{title: "Status"},
		{title: "Source"},
		{title: "Created"},
	}, rows)
}

func renderRows(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, col := range cols {
		header[i] = col.title
		align := text.AlignLeft
		if col.numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range cols {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	return tw.Render()
}
