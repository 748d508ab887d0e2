package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func renderTable(w io.Writer, title string, header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	if title != "" {
		tw.SetTitle(title)
	}
	if len(header) > 0 {
		tw.AppendHeader(header)
		tw.SetColumnConfigs(columnAlignment(header))
	}
	for _, row := range rows {
		tw.AppendRow(row)
	}
	tw.Render()
}

func columnAlignment(header table.Row) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, len(header))
	for i, cell := range header {
		name, _ := cell.(string)
		align := text.AlignLeft
		if name == "ID" || name == "Count" || name == "Steps" {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align})
	}
	return configs
}
