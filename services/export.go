package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"legal-ai-assistant/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// InteractionExport is the downloadable form of the interaction and error logs
type InteractionExport struct {
	ExportInfo   ExportInfo            `json:"export_info"`
	Interactions []InteractionLogEntry `json:"interactions"`
	Errors       []ErrorLogEntry       `json:"errors"`
	Summary      ExportSummary         `json:"summary"`
}

type ExportInfo struct {
	ExportDate        time.Time `json:"export_date"`
	TotalInteractions int       `json:"total_interactions"`
	TotalErrors       int       `json:"total_errors"`
	DateRange         string    `json:"date_range,omitempty"`
	Format            string    `json:"format"`
}

type ExportSummary struct {
	UniqueSessions    int            `json:"unique_sessions"`
	AverageConfidence float64        `json:"average_confidence"`
	Outcomes          map[string]int `json:"outcomes"`
	ToolUsage         map[string]int `json:"tool_usage"`
	ErrorTypes        map[string]int `json:"error_types"`
}

// BuildInteractionExport gathers both logs into one export document.
func BuildInteractionExport(interactions []InteractionLogEntry, errs []ErrorLogEntry, format string) *InteractionExport {
	data := &InteractionExport{
		ExportInfo: ExportInfo{
			ExportDate:        time.Now().UTC(),
			TotalInteractions: len(interactions),
			TotalErrors:       len(errs),
			Format:            format,
		},
		Interactions: interactions,
		Errors:       errs,
		Summary: ExportSummary{
			Outcomes:   map[string]int{},
			ToolUsage:  map[string]int{},
			ErrorTypes: map[string]int{},
		},
	}

	sessions := make(map[string]struct{})
	var confidenceSum float64
	var earliest, latest time.Time
	for _, in := range interactions {
		if earliest.IsZero() || in.Timestamp.Before(earliest) {
			earliest = in.Timestamp
		}
		if in.Timestamp.After(latest) {
			latest = in.Timestamp
		}
		if s, ok := in.Metadata["session_id"].(string); ok {
			sessions[s] = struct{}{}
		}
		if o, ok := in.Metadata["outcome"].(string); ok {
			data.Summary.Outcomes[o]++
		}
		if c, ok := in.Metadata["confidence"].(float64); ok {
			confidenceSum += c
		}
		for _, tool := range toolsUsed(in.Metadata) {
			data.Summary.ToolUsage[tool]++
		}
	}
	for _, e := range errs {
		data.Summary.ErrorTypes[e.ErrorType]++
	}

	data.Summary.UniqueSessions = len(sessions)
	if len(interactions) > 0 {
		data.Summary.AverageConfidence = confidenceSum / float64(len(interactions))
		data.ExportInfo.DateRange = fmt.Sprintf("%s - %s",
			earliest.Format("2006-01-02 15:04:05"), latest.Format("2006-01-02 15:04:05"))
	}
	return data
}

// toolsUsed reads the tools_used metadata both as written ([]string) and as
// replayed from JSON ([]any).
func toolsUsed(metadata map[string]any) []string {
	switch v := metadata["tools_used"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ExportExcel renders the export as an xlsx workbook
func ExportExcel(data *InteractionExport) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Error("Error closing Excel file", "error", err)
		}
	}()

	// The default sheet becomes the interactions sheet
	sheetName := "Interactions"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headers := []string{
		"Timestamp", "Session ID", "Query", "Response", "Source",
		"Outcome", "Tools Used", "Hits", "Confidence", "Duration (ms)",
	}
	for i, header := range headers {
		f.SetCellValue(sheetName, fmt.Sprintf("%c1", 'A'+i), header)
	}

	for rowIdx, in := range data.Interactions {
		row := rowIdx + 2 // Start from row 2 (after headers)

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), in.Timestamp.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), in.Metadata["session_id"])
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), in.Query)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), in.Response)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), in.Source)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), in.Metadata["outcome"])
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), strings.Join(toolsUsed(in.Metadata), ", "))
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), in.Metadata["hit_count"])
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), in.Metadata["confidence"])
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), in.Metadata["duration_ms"])
	}

	for i := range headers {
		col := fmt.Sprintf("%c", 'A'+i)
		f.SetColWidth(sheetName, col, col, 18)
	}
	f.SetColWidth(sheetName, "C", "D", 60)

	errorsSheet := "Errors"
	if _, err := f.NewSheet(errorsSheet); err != nil {
		return nil, fmt.Errorf("failed to create errors sheet: %w", err)
	}
	for i, header := range []string{"Timestamp", "Error Type", "Message", "Context"} {
		f.SetCellValue(errorsSheet, fmt.Sprintf("%c1", 'A'+i), header)
	}
	for rowIdx, e := range data.Errors {
		row := rowIdx + 2
		ctxJSON, _ := json.Marshal(e.Context)
		f.SetCellValue(errorsSheet, fmt.Sprintf("A%d", row), e.Timestamp.Format("2006-01-02 15:04:05"))
		f.SetCellValue(errorsSheet, fmt.Sprintf("B%d", row), e.ErrorType)
		f.SetCellValue(errorsSheet, fmt.Sprintf("C%d", row), e.ErrorMessage)
		f.SetCellValue(errorsSheet, fmt.Sprintf("D%d", row), string(ctxJSON))
	}
	f.SetColWidth(errorsSheet, "A", "B", 20)
	f.SetColWidth(errorsSheet, "C", "D", 60)

	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	summaryData := [][]interface{}{
		{"Export Information", ""},
		{"Export Date", data.ExportInfo.ExportDate.Format("2006-01-02 15:04:05")},
		{"Date Range", data.ExportInfo.DateRange},
		{"Total Interactions", data.ExportInfo.TotalInteractions},
		{"Total Errors", data.ExportInfo.TotalErrors},
		{"Unique Sessions", data.Summary.UniqueSessions},
		{"Average Confidence", fmt.Sprintf("%.2f", data.Summary.AverageConfidence)},
	}
	summaryData = appendCounts(summaryData, "Outcomes", data.Summary.Outcomes)
	summaryData = appendCounts(summaryData, "Tool Usage", data.Summary.ToolUsage)
	summaryData = appendCounts(summaryData, "Error Types", data.Summary.ErrorTypes)

	for i, row := range summaryData {
		for j, cell := range row {
			f.SetCellValue(summarySheet, fmt.Sprintf("%c%d", 'A'+j, i+1), cell)
		}
	}
	f.SetColWidth(summarySheet, "A", "A", 25)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return &buf, nil
}

func appendCounts(rows [][]interface{}, title string, counts map[string]int) [][]interface{} {
	if len(counts) == 0 {
		return rows
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows = append(rows, []interface{}{"", ""}, []interface{}{title, "Count"})
	for _, k := range keys {
		rows = append(rows, []interface{}{k, counts[k]})
	}
	return rows
}

// StreamExport writes the export straight to the HTTP response
func StreamExport(c *gin.Context, data *InteractionExport, format string) error {
	filename := "interactions_" + data.ExportInfo.ExportDate.Format("20060102_150405")

	switch format {
	case "json":
		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		c.Header("Content-Disposition", "attachment; filename="+filename+".json")
		c.Header("Content-Length", strconv.Itoa(len(jsonData)))
		c.Data(http.StatusOK, "application/json", jsonData)

	case "excel", "xlsx":
		buf, err := ExportExcel(data)
		if err != nil {
			return err
		}
		c.Header("Content-Disposition", "attachment; filename="+filename+".xlsx")
		c.Header("Content-Length", strconv.Itoa(buf.Len()))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())

	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	return nil
}
