package xlform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// RecalcPolicy decides when template formulas are recomputed for an
// uploaded row.
type RecalcPolicy int

const (
	// RecalcBackfill recomputes a formula column only when the upload left
	// it without a value, e.g. when the workbook carried no cached result.
	RecalcBackfill RecalcPolicy = iota
	// RecalcAlways recomputes every formula column from the row's inputs,
	// replacing values found in the upload.
	RecalcAlways
	// RecalcNever keeps the upload's values as found.
	RecalcNever
)

// String returns the config name of the policy.
func (p RecalcPolicy) String() string {
	switch p {
	case RecalcBackfill:
		return "backfill"
	case RecalcAlways:
		return "always"
	case RecalcNever:
		return "never"
	default:
		return fmt.Sprintf("RecalcPolicy(%d)", int(p))
	}
}

// ParseRecalcPolicy parses "backfill", "always" or "never".
func ParseRecalcPolicy(s string) (RecalcPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "backfill":
		return RecalcBackfill, nil
	case "always":
		return RecalcAlways, nil
	case "never":
		return RecalcNever, nil
	}
	return RecalcBackfill, fmt.Errorf("unknown recalc policy %q", s)
}

// RowResult summarizes one stored row.
type RowResult struct {
	RowNumber        int     `json:"rowNumber"`
	EmployeeID       string  `json:"employeeId"`
	EmployeeName     string  `json:"employeeName"`
	Email            string  `json:"email"`
	Designation      string  `json:"designation"`
	Department       string  `json:"department"`
	DataID           string  `json:"dataId"`
	CalculatedValues RowData `json:"calculatedValues"`
}

// ProcessResult is the outcome of processing one upload. Row-scoped
// failures are listed in Errors; they never fail the batch.
type ProcessResult struct {
	UploadBatchID      string      `json:"uploadBatchId"`
	TemplateID         string      `json:"templateId"`
	TemplateName       string      `json:"templateName"`
	TotalRows          int         `json:"totalRows"`
	SuccessCount       int         `json:"successCount"`
	ErrorCount         int         `json:"errorCount"`
	ValidationWarnings []string    `json:"validationWarnings,omitempty"`
	Results            []RowResult `json:"results"`
	Errors             []RowError  `json:"errors"`
}

// RowProcessor turns the data rows of an uploaded grid into UploadedRows.
type RowProcessor struct {
	opts      *Options
	directory EmployeeDirectory
	rows      RowStore
	engine    *FormulaEngine
	rules     *RuleSet
}

// NewRowProcessor creates a RowProcessor resolving employees through
// directory and storing rows in rows.
func NewRowProcessor(directory EmployeeDirectory, rows RowStore, opts ...Option) (*RowProcessor, error) {
	o := buildOptions(opts)
	rules, err := o.ruleSet()
	if err != nil {
		return nil, fmt.Errorf("header rules: %w", err)
	}
	return &RowProcessor{
		opts:      o,
		directory: directory,
		rows:      rows,
		engine:    &FormulaEngine{logger: o.logger},
		rules:     rules,
	}, nil
}

// pendingRow is a non-empty data row awaiting its employee lookup.
type pendingRow struct {
	row        int // 0-based
	employeeID string
	employee   *Employee
	lookupErr  error
}

// Process stores one UploadedRow per data row of g whose employee resolves.
// The returned error is batch-fatal: ErrMissingEmployeeIDColumn, or a
// directory failure other than ErrEmployeeNotFound.
func (p *RowProcessor) Process(ctx context.Context, t *TemplateModel, g *Grid, uploadedBy string) (*ProcessResult, error) {
	headers := p.uploadHeaders(t, g)
	idCol := p.employeeIDColumn(t, headers)
	if idCol < 0 {
		return nil, ErrMissingEmployeeIDColumn
	}
	dataStart := t.DataStartRow
	if dataStart < 0 {
		dataStart = max(t.HeaderRowIndex+1, 1)
	}

	res := &ProcessResult{
		UploadBatchID: p.opts.newID(),
		TemplateID:    t.ID,
		TemplateName:  t.TemplateName,
		TotalRows:     max(g.MaxRow-dataStart+1, 0),
		Results:       []RowResult{},
		Errors:        []RowError{},
	}
	log := p.opts.logger.With(slog.String("batch", res.UploadBatchID))

	var pending []*pendingRow
	for r := dataStart; r <= g.MaxRow; r++ {
		if g.RowIsEmpty(r) {
			continue
		}
		pending = append(pending, &pendingRow{row: r, employeeID: g.Text(r, idCol)})
	}
	if err := p.lookupEmployees(ctx, pending); err != nil {
		return nil, err
	}

	for _, pr := range pending {
		rowNumber := pr.row + 1
		switch {
		case pr.employeeID == "":
			res.addError(RowError{RowNumber: rowNumber, Message: "Missing Employee ID", Err: ErrMissingEmployeeID})
			continue
		case pr.lookupErr != nil:
			res.addError(RowError{
				RowNumber:  rowNumber,
				EmployeeID: pr.employeeID,
				Message:    fmt.Sprintf("Employee with ID %s not found", pr.employeeID),
				Err:        pr.lookupErr,
			})
			continue
		}

		stored, err := p.storeRow(ctx, t, g, headers, dataStart, pr, res.UploadBatchID, uploadedBy)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("row not stored", slog.Int("row", rowNumber), slog.String("error", err.Error()))
			res.addError(RowError{RowNumber: rowNumber, EmployeeID: pr.employeeID, Message: err.Error(), Err: err})
			continue
		}

		emp := pr.employee
		res.SuccessCount++
		res.Results = append(res.Results, RowResult{
			RowNumber:        rowNumber,
			EmployeeID:       emp.EmployeeID,
			EmployeeName:     emp.FullName(),
			Email:            emp.Email,
			Designation:      emp.Designation,
			Department:       emp.Department,
			DataID:           stored.ID,
			CalculatedValues: stored.CalculatedData,
		})
	}

	log.Info("upload processed",
		slog.String("template", t.TemplateName),
		slog.Int("success", res.SuccessCount),
		slog.Int("errors", res.ErrorCount))
	return res, nil
}

func (r *ProcessResult) addError(e RowError) {
	r.Errors = append(r.Errors, e)
	r.ErrorCount++
}

// lookupEmployees resolves every pending row, at most lookupConcurrency at
// a time. Not-found results stay on their row; any other directory failure
// aborts the batch.
func (p *RowProcessor) lookupEmployees(ctx context.Context, pending []*pendingRow) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.opts.lookupConcurrency)
	for _, pr := range pending {
		if pr.employeeID == "" {
			continue
		}
		eg.Go(func() error {
			emp, err := p.directory.FindActiveEmployee(gctx, pr.employeeID)
			switch {
			case errors.Is(err, ErrEmployeeNotFound):
				pr.lookupErr = err
			case err != nil:
				return fmt.Errorf("look up employee %q: %w", pr.employeeID, err)
			case emp == nil:
				pr.lookupErr = ErrEmployeeNotFound
			default:
				pr.employee = emp
			}
			return nil
		})
	}
	return eg.Wait()
}

// storeRow builds and persists the UploadedRow of one data row.
func (p *RowProcessor) storeRow(ctx context.Context, t *TemplateModel, g *Grid, headers map[int]string,
	dataStart int, pr *pendingRow, batchID, uploadedBy string) (*UploadedRow, error) {
	var raw, data RowData
	for _, c := range g.Row(pr.row) {
		header := headers[c.Col]
		if header == "" {
			continue
		}
		raw.Set(header, Literal(c.Value))
		if c.IsFormula() {
			data.Set(header, Computed(c.Formula, c.Value))
		} else {
			data.Set(header, Literal(c.Value))
		}
	}

	p.recalculate(t, headers, dataStart, pr.row, raw, &data)

	calculated := make(RowData, 0, len(data))
	for _, e := range data {
		calculated = append(calculated, RowEntry{Header: e.Header, Value: Literal(e.Value.Resolved())})
	}

	row := &UploadedRow{
		ID:               p.opts.newID(),
		TemplateID:       t.ID,
		EmployeeRef:      pr.employee.ID,
		EmployeeID:       pr.employee.EmployeeID,
		UploadBatchID:    batchID,
		RowNumber:        pr.row + 1,
		RawData:          raw,
		Data:             data,
		CalculatedData:   calculated,
		Status:           StatusValidated,
		ValidationErrors: []string{},
		UploadedBy:       uploadedBy,
		CreatedAt:        p.opts.clock(),
	}
	if err := p.rows.CreateRow(ctx, row); err != nil {
		return nil, fmt.Errorf("store row %d: %w", row.RowNumber, err)
	}
	return row, nil
}

// recalculate replays the template's data-region formulas on row r, each
// shifted by the distance from the data start row. The first formula of a
// column wins. Unresolvable formulas leave the column as found.
func (p *RowProcessor) recalculate(t *TemplateModel, headers map[int]string, dataStart, r int, raw RowData, data *RowData) {
	if p.opts.recalcPolicy == RecalcNever {
		return
	}
	done := make(map[int]bool)
	for _, fd := range t.FormulaDefinitions {
		if fd.Row < dataStart || done[fd.Col] {
			continue
		}
		header := headers[fd.Col]
		if header == "" {
			continue
		}
		done[fd.Col] = true
		if existing, ok := data.Get(header); ok && p.opts.recalcPolicy == RecalcBackfill && isPopulated(existing) {
			continue
		}
		formula := ShiftFormulaRows(fd.Formula, r-dataStart)
		v, ok := p.engine.Evaluate(formula, raw, headers, r+1)
		if !ok {
			continue
		}
		data.Set(header, Computed(formula, v))
	}
}

func isPopulated(v FieldValue) bool {
	if v.IsComputed() {
		return v.HasCalculatedValue()
	}
	return !isBlankValue(v.Value)
}

// uploadHeaders maps column → header text of the upload, falling back to
// the template's header where the upload has none.
func (p *RowProcessor) uploadHeaders(t *TemplateModel, g *Grid) map[int]string {
	headers := t.HeaderColumns()
	if t.HeaderRowIndex < 0 {
		return headers
	}
	for _, c := range g.Row(t.HeaderRowIndex) {
		if c.IsFormula() {
			continue
		}
		if text := g.Text(c.Row, c.Col); text != "" {
			headers[c.Col] = text
		}
	}
	return headers
}

// employeeIDColumn returns the template's employee-id column, or the
// leftmost upload header that classifies as one.
func (p *RowProcessor) employeeIDColumn(t *TemplateModel, headers map[int]string) int {
	if col := t.EmployeeFieldMapping.EmployeeIDColumn; col >= 0 {
		return col
	}
	best := -1
	for col, h := range headers {
		if (best < 0 || col < best) && p.rules.Matches(h, FieldEmployeeID) {
			best = col
		}
	}
	return best
}
