// Package storetest checks that a store honours the contracts of
// xlform.TemplateStore, xlform.RowStore and xlform.EmployeeStore.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/javajack/xlform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is everything a complete backend implements.
type Store interface {
	xlform.TemplateStore
	xlform.RowStore
	xlform.EmployeeStore
}

var base = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// Run runs the contract tests. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("Rows", func(t *testing.T) { testRows(t, newStore(t)) })
	t.Run("Employees", func(t *testing.T) { testEmployees(t, newStore(t)) })
}

func template(id, name string, age time.Duration) *xlform.TemplateModel {
	return &xlform.TemplateModel{
		ID:           id,
		TemplateName: name,
		Version:      "1.0.0",
		SheetName:    "PMS Data",
		ColumnMappings: []xlform.ColumnMapping{
			{ColumnIndex: 0, HeaderName: "Employee ID", MappedField: xlform.FieldEmployeeID, DataType: xlform.DataString, IsRequired: true},
			{ColumnIndex: 1, HeaderName: "Total", DataType: xlform.DataFormula},
		},
		FormulaDefinitions: []xlform.FormulaDefinition{
			{CellAddress: "B2", Row: 1, Col: 1, Formula: "SUM(C2,D2)", DependentCells: []string{"C2", "D2"}, ResultType: xlform.ResultNumber},
		},
		EmployeeFieldMapping: xlform.NewEmployeeFieldMapping(),
		HeaderRowIndex:       0,
		DataStartRow:         1,
		OriginalFile:         &xlform.OriginalFile{FileName: name + ".xlsx", Data: []byte("PK")},
		IsActive:             true,
		CreatedAt:            base.Add(-age),
	}
}

func testTemplates(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.FindActiveTemplate(ctx, "anything")
	assert.ErrorIs(t, err, xlform.ErrTemplateNotFound)

	older := template("t1", "Older", time.Hour)
	older.EmployeeFieldMapping.EmployeeIDColumn = 0
	require.NoError(t, s.CreateTemplate(ctx, older))
	require.NoError(t, s.CreateTemplate(ctx, template("t2", "Newer", 0)))

	assert.ErrorIs(t, s.CreateTemplate(ctx, template("t3", "Older", 0)), xlform.ErrDuplicate)

	got, err := s.FindTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Older", got.TemplateName)
	assert.Equal(t, 0, got.EmployeeFieldMapping.EmployeeIDColumn)
	assert.Equal(t, -1, got.EmployeeFieldMapping.EmailColumn)
	assert.Equal(t, older.FormulaDefinitions, got.FormulaDefinitions)
	assert.Equal(t, []byte("PK"), got.OriginalFile.Data)
	assert.True(t, got.CreatedAt.Equal(older.CreatedAt))

	// Returned records are copies.
	got.TemplateName = "changed"
	again, err := s.FindTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Older", again.TemplateName)

	_, err = s.FindTemplate(ctx, "missing")
	assert.ErrorIs(t, err, xlform.ErrTemplateNotFound)

	byName, err := s.FindActiveTemplate(ctx, "Older")
	require.NoError(t, err)
	assert.Equal(t, "t1", byName.ID)
	fallback, err := s.FindActiveTemplate(ctx, "Unknown")
	require.NoError(t, err)
	assert.Equal(t, "t2", fallback.ID)

	list, err := s.ListActiveTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t2", list[0].ID)
	assert.Equal(t, "t1", list[1].ID)

	require.NoError(t, s.SoftDeleteTemplate(ctx, "t2"))
	assert.ErrorIs(t, s.SoftDeleteTemplate(ctx, "missing"), xlform.ErrTemplateNotFound)

	list, err = s.ListActiveTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t1", list[0].ID)

	deleted, err := s.FindTemplate(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, deleted.IsActive)

	fallback, err = s.FindActiveTemplate(ctx, "Newer")
	require.NoError(t, err)
	assert.Equal(t, "t1", fallback.ID)
}

func row(batch string, n int, employee string, status xlform.RowStatus, at time.Time) *xlform.UploadedRow {
	var data xlform.RowData
	data.Set("Employee ID", xlform.Literal(employee))
	data.Set("Total", xlform.Computed("SUM(C2,D2)", 7.0))
	return &xlform.UploadedRow{
		ID:               fmt.Sprintf("%s-%d", batch, n),
		TemplateID:       "t1",
		EmployeeRef:      "ref-" + employee,
		EmployeeID:       employee,
		UploadBatchID:    batch,
		RowNumber:        n,
		Data:             data,
		Status:           status,
		ValidationErrors: []string{},
		UploadedBy:       "manager",
		CreatedAt:        at,
	}
}

func testRows(t *testing.T, s Store) {
	ctx := context.Background()

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, xlform.DataSummary{}, sum)

	early, late := base.Add(-time.Hour), base
	require.NoError(t, s.CreateRow(ctx, row("b1", 3, "E001", xlform.StatusValidated, early)))
	require.NoError(t, s.CreateRow(ctx, row("b1", 2, "E002", xlform.StatusPending, early)))
	require.NoError(t, s.CreateRow(ctx, row("b2", 2, "E001", xlform.StatusError, late)))

	dup := row("b1", 2, "E003", xlform.StatusValidated, late)
	dup.ID = "other"
	assert.ErrorIs(t, s.CreateRow(ctx, dup), xlform.ErrDuplicate)

	batch, err := s.FindRowsByBatch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, 2, batch[0].RowNumber)
	assert.Equal(t, 3, batch[1].RowNumber)

	total, ok := batch[1].Data.Get("Total")
	require.True(t, ok)
	assert.Equal(t, "SUM(C2,D2)", total.Formula)
	assert.Equal(t, 7.0, total.CalculatedValue)

	none, err := s.FindRowsByBatch(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	mine, err := s.FindRowsByEmployee(ctx, "E001")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "b2", mine[0].UploadBatchID)
	assert.Equal(t, "b1", mine[1].UploadBatchID)

	batches, err := s.BatchSummaries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "b2", batches[0].UploadBatchID)
	assert.Equal(t, 1, batches[0].TotalRecords)
	assert.Equal(t, 1, batches[0].ErrorCount)
	assert.Equal(t, "b1", batches[1].UploadBatchID)
	assert.Equal(t, "t1", batches[1].TemplateID)
	assert.Equal(t, "manager", batches[1].UploadedBy)
	assert.True(t, batches[1].UploadedAt.Equal(early))
	assert.Equal(t, 2, batches[1].TotalRecords)
	assert.Equal(t, 1, batches[1].ValidatedCount)
	assert.Equal(t, 1, batches[1].PendingCount)

	limited, err := s.BatchSummaries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b2", limited[0].UploadBatchID)

	sum, err = s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, xlform.DataSummary{
		TotalRecords:   3,
		TotalBatches:   2,
		ValidatedCount: 1,
		PendingCount:   1,
		ErrorCount:     1,
	}, sum)
}

func employee(id, email, manager string) *xlform.Employee {
	return &xlform.Employee{
		ID:          "ref-" + id,
		EmployeeID:  id,
		FirstName:   "First",
		LastName:    id,
		Email:       email,
		Designation: "Analyst",
		Department:  "Finance",
		ManagerID:   manager,
		IsActive:    true,
		CreatedAt:   base,
	}
}

func testEmployees(t *testing.T, s Store) {
	ctx := context.Background()

	require.NoError(t, s.CreateEmployee(ctx, employee("M001", "boss@example.com", "")))
	require.NoError(t, s.CreateEmployee(ctx, employee("E002", "b@example.com", "M001")))
	require.NoError(t, s.CreateEmployee(ctx, employee("E001", "a@example.com", "M001")))

	assert.ErrorIs(t, s.CreateEmployee(ctx, employee("E001", "new@example.com", "")), xlform.ErrDuplicate)
	dup := employee("E009", "a@example.com", "")
	dup.ID = "ref-other"
	assert.ErrorIs(t, s.CreateEmployee(ctx, dup), xlform.ErrDuplicate)

	e, err := s.FindActiveEmployee(ctx, "E001")
	require.NoError(t, err)
	assert.Equal(t, "ref-E001", e.ID)
	assert.Equal(t, "M001", e.ManagerID)
	assert.True(t, e.IsActive)

	_, err = s.FindActiveEmployee(ctx, "E404")
	assert.ErrorIs(t, err, xlform.ErrEmployeeNotFound)

	reports, err := s.ListByManager(ctx, "M001")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "E001", reports[0].EmployeeID)
	assert.Equal(t, "E002", reports[1].EmployeeID)

	require.NoError(t, s.DeactivateEmployee(ctx, "E002"))
	assert.ErrorIs(t, s.DeactivateEmployee(ctx, "E002"), xlform.ErrEmployeeNotFound)

	_, err = s.FindActiveEmployee(ctx, "E002")
	assert.ErrorIs(t, err, xlform.ErrEmployeeNotFound)

	reports, err = s.ListByManager(ctx, "M001")
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	active, err := s.ListActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "E001", active[0].EmployeeID)
	assert.Equal(t, "M001", active[1].EmployeeID)
}
