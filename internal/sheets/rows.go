package sheets

import (
	"fmt"
	"strconv"

	"bil/internal/core"
)

// Header is the first row of every exported project sheet.
var Header = []string{"Group", "Payment ID", "Name", "Date", "Asset", "Liability", "Currency", "Attachment"}

// SheetTitle names the sheet holding a project.
func SheetTitle(projectID int) string {
	return fmt.Sprintf("Project %d", projectID)
}

// Rows flattens a project into the header plus one row per payment, in
// paygroup then payment order. A paygroup without payments gets a row with
// only its name so it stays visible.
func Rows(project core.ProjectDetail) [][]string {
	rows := [][]string{append([]string(nil), Header...)}
	for _, g := range project.Paygroups {
		if len(g.Payments) == 0 {
			rows = append(rows, []string{g.Name, "", "", "", "", "", "", ""})
			continue
		}
		for _, p := range g.Payments {
			rows = append(rows, []string{
				g.Name,
				strconv.Itoa(p.ID),
				p.Name,
				p.Date.String(),
				p.Asset.String(),
				p.Liability.String(),
				p.Currency,
				p.Attachment,
			})
		}
	}
	return rows
}
