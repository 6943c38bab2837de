package xlform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// XLSXContentType is the media type of generated workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Service ties extraction, validation and row processing to the stores.
// Methods taking a file path own that file: it is removed on every exit
// path, successful or not.
type Service struct {
	opts      *Options
	templates TemplateStore
	rows      RowStore
	employees EmployeeStore
	extractor *Extractor
	processor *RowProcessor
}

// NewService creates a Service over the given stores.
func NewService(templates TemplateStore, rows RowStore, employees EmployeeStore, opts ...Option) (*Service, error) {
	o := buildOptions(opts)
	extractor, err := NewExtractor(opts...)
	if err != nil {
		return nil, err
	}
	processor, err := NewRowProcessor(employees, rows, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{
		opts:      o,
		templates: templates,
		rows:      rows,
		employees: employees,
		extractor: extractor,
		processor: processor,
	}, nil
}

// TemplateUpload is a reference workbook staged on disk.
type TemplateUpload struct {
	Path        string // temporary file, removed by the service
	FileName    string // original file name; defaults to the base of Path
	Name        string // base template name; defaults to the configured name
	Description string
	CreatedBy   string
}

// UploadRequest is a filled-in data workbook staged on disk.
type UploadRequest struct {
	TemplateID string
	Path       string // temporary file, removed by the service
	UploadedBy string
}

// FileDownload is a workbook ready to be served.
type FileDownload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// TemplatePreview is the structure of a template without its cells and
// original bytes.
type TemplatePreview struct {
	ID                   string               `json:"id"`
	TemplateName         string               `json:"templateName"`
	Description          string               `json:"description"`
	Version              string               `json:"version"`
	Headers              []string             `json:"headers"`
	ColumnMappings       []ColumnMapping      `json:"columnMappings"`
	FormulaDefinitions   []FormulaDefinition  `json:"formulaDefinitions"`
	EmployeeFieldMapping EmployeeFieldMapping `json:"employeeFieldMapping"`
	HeaderRowIndex       int                  `json:"headerRowIndex"`
	DataStartRow         int                  `json:"dataStartRow"`
	Metadata             TemplateMetadata     `json:"metadata"`
	HasOriginalFile      bool                 `json:"hasOriginalFile"`
}

// BatchDetail is one batch's rows together with their template.
type BatchDetail struct {
	UploadBatchID string         `json:"uploadBatchId"`
	Template      *TemplateModel `json:"template,omitempty"`
	Rows          []*UploadedRow `json:"rows"`
}

// CreateTemplate extracts and stores a template from a staged workbook.
func (s *Service) CreateTemplate(ctx context.Context, up TemplateUpload) (*TemplateModel, error) {
	defer s.removeTemp(up.Path)

	data, err := os.ReadFile(up.Path)
	if err != nil {
		return nil, fmt.Errorf("read template upload: %w", err)
	}
	fileName := up.FileName
	if fileName == "" {
		fileName = filepath.Base(up.Path)
	}
	t, err := s.extractor.ExtractBytes(data, fileName, TemplateInfo{
		Name:        up.Name,
		Description: up.Description,
		CreatedBy:   up.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("extract template %q: %w", fileName, err)
	}
	if err := s.templates.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("store template %q: %w", t.TemplateName, err)
	}
	s.opts.logger.Info("template created",
		slog.String("template", t.TemplateName),
		slog.String("id", t.ID))
	return t, nil
}

// ListTemplates returns the active templates, newest first.
func (s *Service) ListTemplates(ctx context.Context) ([]*TemplateModel, error) {
	return s.templates.ListActiveTemplates(ctx)
}

// Template returns a template by id.
func (s *Service) Template(ctx context.Context, id string) (*TemplateModel, error) {
	return s.templates.FindTemplate(ctx, id)
}

// TemplatePreview returns the structure of a template by id.
func (s *Service) TemplatePreview(ctx context.Context, id string) (*TemplatePreview, error) {
	t, err := s.templates.FindTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	headers := make([]string, 0, len(t.ColumnMappings))
	for _, m := range t.ColumnMappings {
		headers = append(headers, m.HeaderName)
	}
	return &TemplatePreview{
		ID:                   t.ID,
		TemplateName:         t.TemplateName,
		Description:          t.Description,
		Version:              t.Version,
		Headers:              headers,
		ColumnMappings:       t.ColumnMappings,
		FormulaDefinitions:   t.FormulaDefinitions,
		EmployeeFieldMapping: t.EmployeeFieldMapping,
		HeaderRowIndex:       t.HeaderRowIndex,
		DataStartRow:         t.DataStartRow,
		Metadata:             t.Metadata,
		HasOriginalFile:      t.OriginalFile != nil && len(t.OriginalFile.Data) > 0,
	}, nil
}

// TemplateByName returns the active template named name, or the most
// recently created active template when that name is unknown.
func (s *Service) TemplateByName(ctx context.Context, name string) (*TemplateModel, error) {
	return s.templates.FindActiveTemplate(ctx, name)
}

// DeleteTemplate soft-deletes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.templates.SoftDeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return nil
}

// DownloadTemplate returns the original workbook of a template, or one
// rebuilt from its cells, formulas included, when the original was not kept.
func (s *Service) DownloadTemplate(ctx context.Context, id string) (*FileDownload, error) {
	t, err := s.templates.FindTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if f := t.OriginalFile; f != nil && len(f.Data) > 0 {
		name := f.FileName
		if name == "" {
			name = t.TemplateName + ".xlsx"
		}
		return &FileDownload{FileName: name, ContentType: XLSXContentType, Data: bytes.Clone(f.Data)}, nil
	}

	sheet := t.SheetName
	if sheet == "" {
		sheet = "PMS Data"
	}
	g := NewGrid(sheet)
	for _, def := range t.SheetStructure {
		g.Set(&Cell{
			Row:          def.Row,
			Col:          def.Col,
			Value:        def.Value,
			Formula:      def.Formula,
			NumberFormat: def.NumberFormat,
			Type:         valueTypeOf(def.Value),
		})
	}
	var buf bytes.Buffer
	if err := s.opts.codec.Encode(g, &buf); err != nil {
		return nil, fmt.Errorf("rebuild template %s: %w", t.TemplateName, err)
	}
	return &FileDownload{FileName: t.TemplateName + ".xlsx", ContentType: XLSXContentType, Data: buf.Bytes()}, nil
}

// ValidateUploadFile checks a staged upload against a template without
// storing anything.
func (s *Service) ValidateUploadFile(ctx context.Context, templateID, path string) (*ValidationReport, error) {
	defer s.removeTemp(path)

	t, err := s.templates.FindTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	g, err := s.decodeFile(path)
	if err != nil {
		return nil, err
	}
	return ValidateUpload(t, g), nil
}

// ProcessUpload validates a staged upload and stores its rows. Hard
// validation errors fail the batch with a *ValidationError; warnings are
// attached to the result.
func (s *Service) ProcessUpload(ctx context.Context, req UploadRequest) (*ProcessResult, error) {
	defer s.removeTemp(req.Path)

	t, err := s.templates.FindTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	g, err := s.decodeFile(req.Path)
	if err != nil {
		return nil, err
	}
	report := ValidateUpload(t, g)
	if err := report.Err(); err != nil {
		return nil, err
	}
	res, err := s.processor.Process(ctx, t, g, req.UploadedBy)
	if err != nil {
		return nil, fmt.Errorf("process upload for template %s: %w", t.TemplateName, err)
	}
	res.ValidationWarnings = report.Warnings
	return res, nil
}

// UploadHistory returns per-batch aggregates, newest first, up to the
// configured history limit.
func (s *Service) UploadHistory(ctx context.Context) ([]BatchSummary, error) {
	batches, err := s.rows.BatchSummaries(ctx, s.opts.historyLimit)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string)
	for i := range batches {
		id := batches[i].TemplateID
		name, ok := names[id]
		if !ok {
			if t, err := s.templates.FindTemplate(ctx, id); err == nil {
				name = t.TemplateName
			}
			names[id] = name
		}
		batches[i].TemplateName = name
	}
	return batches, nil
}

// DataByEmployee returns every stored row of one employee, newest first.
func (s *Service) DataByEmployee(ctx context.Context, employeeID string) ([]*UploadedRow, error) {
	return s.rows.FindRowsByEmployee(ctx, employeeID)
}

// DataByBatch returns the rows of one batch in sheet order.
func (s *Service) DataByBatch(ctx context.Context, batchID string) ([]*UploadedRow, error) {
	return s.rows.FindRowsByBatch(ctx, batchID)
}

// DataSummary returns totals over every stored row.
func (s *Service) DataSummary(ctx context.Context) (DataSummary, error) {
	return s.rows.Summary(ctx)
}

// BatchWithCalculations returns a batch's rows with the template that
// produced them.
func (s *Service) BatchWithCalculations(ctx context.Context, batchID string) (*BatchDetail, error) {
	rows, err := s.rows.FindRowsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrBatchNotFound
	}
	detail := &BatchDetail{UploadBatchID: batchID, Rows: rows}
	if t, err := s.templates.FindTemplate(ctx, rows[0].TemplateID); err == nil {
		t.OriginalFile = nil
		detail.Template = t
	} else if !errors.Is(err, ErrTemplateNotFound) {
		return nil, err
	}
	return detail, nil
}

// ExportBatch renders a batch as a workbook: one header row taken from the
// template's column mappings, then one row per stored row with calculated
// values in place of formulas.
func (s *Service) ExportBatch(ctx context.Context, batchID string) (*FileDownload, error) {
	rows, err := s.rows.FindRowsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrBatchNotFound
	}

	templateName := "export"
	var headers []string
	t, err := s.templates.FindTemplate(ctx, rows[0].TemplateID)
	switch {
	case err == nil:
		templateName = t.TemplateName
		for _, m := range t.ColumnMappings {
			headers = append(headers, m.HeaderName)
		}
	case !errors.Is(err, ErrTemplateNotFound):
		return nil, err
	}
	if len(headers) == 0 {
		headers = batchHeaders(rows)
	}

	g := NewGrid("Employee Data")
	g.ColumnWidths = make(map[int]float64, len(headers))
	widths := make([]int, len(headers))
	for col, h := range headers {
		g.SetValue(0, col, h)
		widths[col] = utf8.RuneCountInString(h)
	}
	for i, row := range rows {
		for col, h := range headers {
			v, ok := row.Data.Get(h)
			if !ok {
				continue
			}
			value := v.Resolved()
			g.SetValue(i+1, col, value)
			widths[col] = max(widths[col], utf8.RuneCountInString(formatValue(value)))
		}
	}
	for col, w := range widths {
		g.ColumnWidths[col] = float64(min(w+2, 50))
	}

	var buf bytes.Buffer
	if err := s.opts.codec.Encode(g, &buf); err != nil {
		return nil, fmt.Errorf("export batch %s: %w", batchID, err)
	}
	short := batchID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("%s_%s_%s.xlsx", templateName, short, s.opts.clock().Format("2006-01-02"))
	return &FileDownload{FileName: name, ContentType: XLSXContentType, Data: buf.Bytes()}, nil
}

// batchHeaders is the union of the rows' headers in first-seen order.
func batchHeaders(rows []*UploadedRow) []string {
	seen := make(map[string]bool)
	var headers []string
	for _, r := range rows {
		for _, h := range r.Data.Headers() {
			if !seen[h] {
				seen[h] = true
				headers = append(headers, h)
			}
		}
	}
	return headers
}

// RegisterEmployee validates and stores a new active employee. A manager,
// when given, must be an active employee.
func (s *Service) RegisterEmployee(ctx context.Context, e *Employee) error {
	NormalizeEmployee(e)
	if err := ValidateEmployee(e); err != nil {
		return err
	}
	if e.ManagerID != "" {
		if _, err := s.employees.FindActiveEmployee(ctx, e.ManagerID); err != nil {
			if errors.Is(err, ErrEmployeeNotFound) {
				return fmt.Errorf("%w: manager %s not found", ErrInvalidEmployee, e.ManagerID)
			}
			return err
		}
	}
	if e.ID == "" {
		e.ID = s.opts.newID()
	}
	e.IsActive = true
	e.CreatedAt = s.opts.clock()
	if err := s.employees.CreateEmployee(ctx, e); err != nil {
		return fmt.Errorf("register employee %s: %w", e.EmployeeID, err)
	}
	return nil
}

// ListEmployees returns the active employees.
func (s *Service) ListEmployees(ctx context.Context) ([]*Employee, error) {
	return s.employees.ListActiveEmployees(ctx)
}

// DeactivateEmployee soft-deletes an employee. It is refused while the
// employee has active direct reports.
func (s *Service) DeactivateEmployee(ctx context.Context, employeeID string) error {
	reports, err := s.employees.ListByManager(ctx, employeeID)
	if err != nil {
		return err
	}
	if len(reports) > 0 {
		return fmt.Errorf("%w: %s manages %d active employees", ErrEmployeeHasReports, employeeID, len(reports))
	}
	if err := s.employees.DeactivateEmployee(ctx, employeeID); err != nil {
		return fmt.Errorf("deactivate employee %s: %w", employeeID, err)
	}
	return nil
}

func (s *Service) decodeFile(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return s.opts.codec.Decode(f)
}

// removeTemp deletes a staged upload. Failures are logged, not returned.
func (s *Service) removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.opts.logger.Warn("temporary upload not removed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}
