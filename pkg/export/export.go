// Package export writes stored call records to spreadsheets.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tealeg/xlsx"

	"notebot/pkg/repository"
)

const sheetName = "Calls"

var header = []string{
	"ID",
	"Session ID",
	"Created At",
	"Call Date",
	"Call Type",
	"Title",
	"Participants",
	"Minutes",
	"Note Types",
	"Notes",
	"Total Cost",
	"Audio URL",
}

// Build lays the records out as one sheet, one row per call. Each note type
// response gets its own column after the fixed ones.
func Build(records []repository.CallRecord) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return nil, err
	}

	noteTypes := responseColumns(records)

	headerRow := sheet.AddRow()
	for _, title := range header {
		headerRow.AddCell().Value = title
	}
	for _, nt := range noteTypes {
		headerRow.AddCell().Value = nt
	}

	for _, rec := range records {
		names := make([]string, 0, len(rec.Participants))
		for _, p := range rec.Participants {
			names = append(names, p.Name)
		}

		row := sheet.AddRow()
		row.AddCell().Value = rec.ID
		row.AddCell().Value = rec.SessionID
		row.AddCell().Value = rec.CreatedAt.Format(time.RFC3339)
		row.AddCell().Value = rec.Date.Format(time.RFC3339)
		row.AddCell().Value = rec.CallType
		row.AddCell().Value = rec.Title
		row.AddCell().Value = strings.Join(names, ", ")
		row.AddCell().Value = fmt.Sprintf("%.2f", rec.MinutesElapsed)
		row.AddCell().Value = strings.Join(rec.NoteTypes, ", ")
		row.AddCell().Value = rec.Notes
		row.AddCell().Value = fmt.Sprintf("%.6f", rec.TokenUsage.Total())
		row.AddCell().Value = rec.AudioFileURL
		for _, nt := range noteTypes {
			row.AddCell().Value = rec.NoteTypeResponses[nt]
		}
	}
	return file, nil
}

// ToExcel saves the records to outputFilePath.
func ToExcel(records []repository.CallRecord, outputFilePath string) error {
	file, err := Build(records)
	if err != nil {
		return err
	}
	if err := file.Save(outputFilePath); err != nil {
		return fmt.Errorf("save %s: %w", outputFilePath, err)
	}
	return nil
}

// Write streams the workbook to w.
func Write(records []repository.CallRecord, w io.Writer) error {
	file, err := Build(records)
	if err != nil {
		return err
	}
	return file.Write(w)
}

func responseColumns(records []repository.CallRecord) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for nt := range rec.NoteTypeResponses {
			seen[nt] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for nt := range seen {
		cols = append(cols, nt)
	}
	sort.Strings(cols)
	return cols
}
