package main

import (
	"fmt"
	"io"

	"github.com/ashureev/geochat/internal/domain"
	"github.com/ashureev/geochat/internal/mapview"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

var (
	userStyle      = color.New(color.FgCyan, color.OpBold)
	assistantStyle = color.New(color.FgGreen, color.OpBold)
	headerStyle    = color.New(color.BgBlack, color.FgGreen)
)

func renderMessages(w io.Writer, msgs []domain.ChatMessage) {
	for _, m := range msgs {
		style := assistantStyle
		if m.Role == domain.RoleUser {
			style = userStyle
		}
		fmt.Fprintf(w, "%s %s\n  %s\n", style.Render(string(m.Role)), m.Timestamp, m.Content)
	}
}

func renderSnapshot(w io.Writer, snap domain.Snapshot) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("  ====== %s ======", snapshotLabel(snap))))
	if len(snap.Messages) == 0 {
		fmt.Fprintln(w, "  (no messages)")
		return
	}
	renderMessages(w, snap.Messages)
}

func renderLocation(w io.Writer, fit mapview.FitCall) {
	b := fit.Bounds
	fmt.Fprintf(w, "Located: lon %.6f..%.6f lat %.6f..%.6f\n", b.MinLon, b.MaxLon, b.MinLat, b.MaxLat)
}

func renderRecent(w io.Writer, records []*domain.SessionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No chats yet")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Chat", "Created", "Last opened"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, rec := range records {
		table.Append([]string{
			rec.ChatUUID,
			domain.FormatTimestamp(rec.CreatedAt),
			domain.FormatTimestamp(rec.LastOpenedAt),
		})
	}
	table.Render()
}
