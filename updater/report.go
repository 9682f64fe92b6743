/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// WriteSummary renders the batch outcomes as a markdown table, one row per
// request in input order.
func WriteSummary(w io.Writer, outcomes []Outcome) error {
	table := newSummaryTable(w)

	for _, o := range outcomes {
		pr := ""
		if o.PRNumber != 0 {
			pr = fmt.Sprintf("#%d", o.PRNumber)
		}

		detail := ""
		switch o.Status {
		case StatusSkipped:
			detail = o.Reason
		case StatusFailed:
			detail = fmt.Sprintf("%s: %v", o.Stage, o.Err)
		}

		row := []string{o.Request.Coordinate.String(), string(o.Status), pr, detail}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("appending summary row: %w", err)
		}
	}

	return table.Render()
}

// newSummaryTable creates a table writer with the formatting shared by all
// rollout reports.
func newSummaryTable(w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 120,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader([]string{"Coordinate", "Outcome", "PR", "Detail"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}
