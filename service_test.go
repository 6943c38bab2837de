package xlform_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/javajack/xlform"
	"github.com/javajack/xlform/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var serviceClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// stageWorkbook writes a single-sheet workbook to a temporary file. Strings
// starting with "=" become formulas.
func stageWorkbook(t *testing.T, content map[string]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for addr, v := range content {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "=") {
			require.NoError(t, f.SetCellFormula("Sheet1", addr, s[1:]))
			continue
		}
		require.NoError(t, f.SetCellValue("Sheet1", addr, v))
	}
	path := filepath.Join(t.TempDir(), "upload.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func stageBytes(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func templateSheet() map[string]any {
	return map[string]any{
		"A1": "Employee ID", "B1": "Name", "C1": "Q1", "D1": "Q2", "E1": "Total",
		"A2": "E001", "B2": "Alice", "C2": 3, "D2": 4, "E2": "=SUM(C2,D2)",
	}
}

func uploadSheet() map[string]any {
	return map[string]any{
		"A1": "Employee ID", "B1": "Name", "C1": "Q1", "D1": "Q2", "E1": "Total",
		"A2": "E001", "B2": "Alice", "C2": 3, "D2": 4,
		"A3": "E404", "B3": "Ghost", "C3": 1, "D3": 1,
		"A4": "E002", "B4": "Bob", "C4": 5, "D4": 6,
	}
}

func newService(t *testing.T, opts ...xlform.Option) (*xlform.Service, *memstore.Store) {
	t.Helper()
	var n atomic.Int64
	base := []xlform.Option{
		xlform.WithClock(func() time.Time { return serviceClock }),
		xlform.WithIDGenerator(func() string {
			return fmt.Sprintf("00000000-0000-0000-0000-%012d", n.Add(1))
		}),
	}
	store := memstore.New()
	svc, err := xlform.NewService(store, store, store, append(base, opts...)...)
	require.NoError(t, err)
	return svc, store
}

func registerEmployees(t *testing.T, svc *xlform.Service, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, svc.RegisterEmployee(context.Background(), &xlform.Employee{
			EmployeeID:  id,
			FirstName:   "Emp",
			LastName:    id,
			Email:       strings.ToLower(id) + "@example.com",
			Designation: "Analyst",
			Department:  "Finance",
		}))
	}
}

func createTemplate(t *testing.T, svc *xlform.Service) *xlform.TemplateModel {
	t.Helper()
	tmpl, err := svc.CreateTemplate(context.Background(), xlform.TemplateUpload{
		Path:      stageWorkbook(t, templateSheet()),
		FileName:  "appraisal.xlsx",
		Name:      "Appraisal",
		CreatedBy: "hr-admin",
	})
	require.NoError(t, err)
	return tmpl
}

func TestService_CreateTemplate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	path := stageWorkbook(t, templateSheet())
	tmpl, err := svc.CreateTemplate(ctx, xlform.TemplateUpload{Path: path, FileName: "appraisal.xlsx", Name: "Appraisal"})
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	assert.True(t, strings.HasPrefix(tmpl.TemplateName, "Appraisal-"))
	assert.Equal(t, 0, tmpl.EmployeeFieldMapping.EmployeeIDColumn)

	list, err := svc.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tmpl.ID, list[0].ID)

	preview, err := svc.TemplatePreview(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Employee ID", "Name", "Q1", "Q2", "Total"}, preview.Headers)
	assert.True(t, preview.HasOriginalFile)
	require.Len(t, preview.FormulaDefinitions, 1)

	byName, err := svc.TemplateByName(ctx, tmpl.TemplateName)
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, byName.ID)
}

func TestService_CreateTemplateMalformedRemovesFile(t *testing.T) {
	svc, _ := newService(t)
	path := stageBytes(t, []byte("definitely not a workbook"))

	_, err := svc.CreateTemplate(context.Background(), xlform.TemplateUpload{Path: path})
	assert.ErrorIs(t, err, xlform.ErrMalformedSpreadsheet)
	assert.NoFileExists(t, path)
}

func TestService_CreateTemplateDuplicateName(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc, err := xlform.NewService(store, store, store,
		xlform.WithClock(func() time.Time { return serviceClock }),
		xlform.WithIDGenerator(func() string { return "fixed" }))
	require.NoError(t, err)

	_, err = svc.CreateTemplate(ctx, xlform.TemplateUpload{Path: stageWorkbook(t, templateSheet())})
	require.NoError(t, err)
	_, err = svc.CreateTemplate(ctx, xlform.TemplateUpload{Path: stageWorkbook(t, templateSheet())})
	assert.ErrorIs(t, err, xlform.ErrDuplicate)
}

func TestService_ProcessUploadEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	registerEmployees(t, svc, "E001", "E002")
	tmpl := createTemplate(t, svc)

	path := stageWorkbook(t, uploadSheet())
	res, err := svc.ProcessUpload(ctx, xlform.UploadRequest{TemplateID: tmpl.ID, Path: path, UploadedBy: "manager"})
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Empty(t, res.ValidationWarnings)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Employee with ID E404 not found", res.Errors[0].Message)

	bob, ok := res.Results[1].CalculatedValues.Get("Total")
	require.True(t, ok)
	assert.Equal(t, 11.0, bob.Value)

	rows, err := svc.DataByBatch(ctx, res.UploadBatchID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].RowNumber)
	assert.Equal(t, 4, rows[1].RowNumber)

	history, err := svc.UploadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.UploadBatchID, history[0].UploadBatchID)
	assert.Equal(t, tmpl.TemplateName, history[0].TemplateName)
	assert.Equal(t, "manager", history[0].UploadedBy)
	assert.Equal(t, 2, history[0].TotalRecords)
	assert.Equal(t, 2, history[0].ValidatedCount)

	sum, err := svc.DataSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, xlform.DataSummary{TotalRecords: 2, TotalBatches: 1, ValidatedCount: 2}, sum)

	mine, err := svc.DataByEmployee(ctx, "E002")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 4, mine[0].RowNumber)

	detail, err := svc.BatchWithCalculations(ctx, res.UploadBatchID)
	require.NoError(t, err)
	require.NotNil(t, detail.Template)
	assert.Equal(t, tmpl.ID, detail.Template.ID)
	assert.Nil(t, detail.Template.OriginalFile)
	assert.Len(t, detail.Rows, 2)
}

func TestService_ExportBatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	registerEmployees(t, svc, "E001", "E002")
	tmpl := createTemplate(t, svc)

	res, err := svc.ProcessUpload(ctx, xlform.UploadRequest{TemplateID: tmpl.ID, Path: stageWorkbook(t, uploadSheet())})
	require.NoError(t, err)

	out, err := svc.ExportBatch(ctx, res.UploadBatchID)
	require.NoError(t, err)
	assert.Equal(t, xlform.XLSXContentType, out.ContentType)
	assert.Equal(t, fmt.Sprintf("%s_%s_2025-06-01.xlsx", tmpl.TemplateName, res.UploadBatchID[:8]), out.FileName)

	f, err := excelize.OpenReader(bytes.NewReader(out.Data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Employee Data"}, f.GetSheetList())

	rows, err := f.GetRows("Employee Data")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Employee ID", "Name", "Q1", "Q2", "Total"}, rows[0])
	assert.Equal(t, []string{"E001", "Alice", "3", "4", "7"}, rows[1])
	assert.Equal(t, []string{"E002", "Bob", "5", "6", "11"}, rows[2])

	formula, err := f.GetCellFormula("Employee Data", "E2")
	require.NoError(t, err)
	assert.Empty(t, formula, "exports carry values, not formulas")

	width, err := f.GetColWidth("Employee Data", "A")
	require.NoError(t, err)
	assert.Equal(t, 13.0, width)
}

func TestService_ProcessUploadRejectsTemplateWithoutEmployeeID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	tmpl, err := svc.CreateTemplate(ctx, xlform.TemplateUpload{
		Path: stageWorkbook(t, map[string]any{"A1": "Staff", "B1": "Score", "A2": "S1", "B2": 1}),
	})
	require.NoError(t, err)

	path := stageWorkbook(t, map[string]any{"A1": "Staff", "B1": "Score", "A2": "S1", "B2": 2})
	_, err = svc.ProcessUpload(ctx, xlform.UploadRequest{TemplateID: tmpl.ID, Path: path})
	require.Error(t, err)
	assert.ErrorIs(t, err, xlform.ErrValidationFailed)
	var verr *xlform.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Template does not have an Employee ID column mapping"}, verr.Errors)
	assert.NoFileExists(t, path)
}

func TestService_ProcessUploadUnknownTemplateRemovesFile(t *testing.T) {
	svc, _ := newService(t)
	path := stageWorkbook(t, uploadSheet())
	_, err := svc.ProcessUpload(context.Background(), xlform.UploadRequest{TemplateID: "missing", Path: path})
	assert.ErrorIs(t, err, xlform.ErrTemplateNotFound)
	assert.NoFileExists(t, path)
}

func TestService_ValidateUploadFile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	tmpl := createTemplate(t, svc)

	path := stageWorkbook(t, map[string]any{"A1": "Employee ID", "B1": "Name", "C1": "Q1", "A2": "E001"})
	report, err := svc.ValidateUploadFile(ctx, tmpl.ID, path)
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	assert.True(t, report.IsValid)
	assert.Equal(t, 1, report.RowCount)
	assert.Equal(t, 3, report.ColumnCount)
	assert.Equal(t, []string{
		"Uploaded file has fewer columns than template (3 vs 5)",
		`Expected header "Q2" not found in uploaded file`,
		`Expected header "Total" not found in uploaded file`,
	}, report.Warnings)
}

func TestService_DownloadTemplateOriginal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	data, err := os.ReadFile(stageWorkbook(t, templateSheet()))
	require.NoError(t, err)
	tmpl, err := svc.CreateTemplate(ctx, xlform.TemplateUpload{Path: stageBytes(t, data), FileName: "appraisal.xlsx"})
	require.NoError(t, err)

	out, err := svc.DownloadTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "appraisal.xlsx", out.FileName)
	assert.Equal(t, data, out.Data)
}

func TestService_DownloadTemplateRebuilt(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, xlform.WithRetainOriginal(false))
	tmpl := createTemplate(t, svc)

	out, err := svc.DownloadTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.TemplateName+".xlsx", out.FileName)

	f, err := excelize.OpenReader(bytes.NewReader(out.Data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Sheet1"}, f.GetSheetList())

	header, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Employee ID", header)
	formula, err := f.GetCellFormula("Sheet1", "E2")
	require.NoError(t, err)
	assert.Equal(t, "SUM(C2,D2)", formula)
}

func TestService_DeleteTemplate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	first := createTemplate(t, svc)
	second := createTemplate(t, svc)

	require.NoError(t, svc.DeleteTemplate(ctx, second.ID))

	list, err := svc.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	kept, err := svc.Template(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsActive)

	// An unknown or inactive name falls back to the newest active template.
	fallback, err := svc.TemplateByName(ctx, second.TemplateName)
	require.NoError(t, err)
	assert.Equal(t, first.ID, fallback.ID)

	require.NoError(t, svc.DeleteTemplate(ctx, first.ID))
	_, err = svc.TemplateByName(ctx, "anything")
	assert.ErrorIs(t, err, xlform.ErrTemplateNotFound)

	assert.ErrorIs(t, svc.DeleteTemplate(ctx, "missing"), xlform.ErrTemplateNotFound)
}

func TestService_BatchNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.BatchWithCalculations(ctx, "nope")
	assert.ErrorIs(t, err, xlform.ErrBatchNotFound)
	_, err = svc.ExportBatch(ctx, "nope")
	assert.ErrorIs(t, err, xlform.ErrBatchNotFound)
}

func TestService_Employees(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	registerEmployees(t, svc, "M001")

	report := &xlform.Employee{
		EmployeeID: "E001", FirstName: "Alice", LastName: "Smith", Email: "ALICE@example.com",
		Designation: "Engineer", Department: "R&D", ManagerID: "M001",
	}
	require.NoError(t, svc.RegisterEmployee(ctx, report))
	assert.NotEmpty(t, report.ID)
	assert.True(t, report.IsActive)
	assert.Equal(t, serviceClock, report.CreatedAt)
	assert.Equal(t, "alice@example.com", report.Email)

	err := svc.RegisterEmployee(ctx, &xlform.Employee{
		EmployeeID: "E002", FirstName: "Bob", LastName: "Jones", Email: "alice@example.com",
		Designation: "Engineer", Department: "R&D",
	})
	assert.ErrorIs(t, err, xlform.ErrDuplicate)

	err = svc.RegisterEmployee(ctx, &xlform.Employee{
		EmployeeID: "E003", FirstName: "Cy", LastName: "Lee", Email: "cy@example.com",
		Designation: "Engineer", Department: "R&D", ManagerID: "M999",
	})
	assert.ErrorIs(t, err, xlform.ErrInvalidEmployee)

	err = svc.RegisterEmployee(ctx, &xlform.Employee{EmployeeID: "E004"})
	assert.ErrorIs(t, err, xlform.ErrInvalidEmployee)

	list, err := svc.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, svc.DeactivateEmployee(ctx, "M001"), xlform.ErrEmployeeHasReports)
	require.NoError(t, svc.DeactivateEmployee(ctx, "E001"))
	require.NoError(t, svc.DeactivateEmployee(ctx, "M001"))
	assert.ErrorIs(t, svc.DeactivateEmployee(ctx, "M001"), xlform.ErrEmployeeNotFound)

	list, err = svc.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
