package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
)

const sheetName = "Requests"

// ExportHeader is the first row of every request export
var ExportHeader = []string{
	"Protocol",
	"Workflow",
	"Status",
	"Company",
	"Contract",
	"Solicitant",
	"Created At",
	"Candidate/Employee",
	"Position",
}

// XLSXExporter renders requests to an Excel workbook, resolving reference ids to display names
type XLSXExporter struct {
	referenceRepo port.ReferenceRepository
	userRepo      port.UserRepository
	location      *time.Location
	logger        *zap.Logger
}

// NewXLSXExporter creates a new exporter. Dates are written in loc (UTC when nil).
func NewXLSXExporter(referenceRepo port.ReferenceRepository, userRepo port.UserRepository, loc *time.Location, logger *zap.Logger) *XLSXExporter {
	if loc == nil {
		loc = time.UTC
	}
	return &XLSXExporter{
		referenceRepo: referenceRepo,
		userRepo:      userRepo,
		location:      loc,
		logger:        logger,
	}
}

// ContentType returns the MIME type of the workbook
func (x *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension returns the file extension without the dot
func (x *XLSXExporter) FileExtension() string {
	return "xlsx"
}

// Export writes one row per request after the header row
func (x *XLSXExporter) Export(ctx context.Context, w io.Writer, requests []*entity.Request) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, title := range ExportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		x.setCell(f, cell, title)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(ExportHeader), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	names := newNameCache(ctx, x.referenceRepo, x.userRepo, x.logger)
	for i, req := range requests {
		row := i + 2
		values := []string{
			req.Protocol,
			req.WorkflowName,
			req.Status,
			names.company(req.CompanyID),
			names.contract(req.ContractID),
			names.user(req.SolicitantID),
			req.CreatedAt.In(x.location).Format("2006-01-02 15:04"),
			x.personName(names, req),
			names.position(req.PositionID),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			x.setCell(f, cell, v)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "I", 22); err != nil {
		x.logger.Warn("Failed to set column width", zap.Error(err))
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	x.logger.Info("Request export written", zap.Int("rows", len(requests)))
	return nil
}

// personName prefers the candidate name and falls back to the linked employee
func (x *XLSXExporter) personName(names *nameCache, req *entity.Request) string {
	if req.CandidateName != "" {
		return req.CandidateName
	}
	return names.employee(req.EmployeeID)
}

func (x *XLSXExporter) setCell(f *excelize.File, cell, value string) {
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		x.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

var _ port.RequestExporter = (*XLSXExporter)(nil)
