package xlform

import (
	"context"
	"time"
)

// TemplateStore persists TemplateModels. Template names are unique; a
// conflicting create fails with ErrDuplicate.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *TemplateModel) error
	// FindTemplate returns the template with id, active or not, or
	// ErrTemplateNotFound.
	FindTemplate(ctx context.Context, id string) (*TemplateModel, error)
	// FindActiveTemplate returns the active template named name. When no
	// active template has that name it returns the most recently created
	// active template instead; ErrTemplateNotFound only when none is active.
	FindActiveTemplate(ctx context.Context, name string) (*TemplateModel, error)
	// ListActiveTemplates returns active templates, newest first.
	ListActiveTemplates(ctx context.Context) ([]*TemplateModel, error)
	SoftDeleteTemplate(ctx context.Context, id string) error
}

// RowStore persists UploadedRows. (batch, rowNumber) is unique; a
// conflicting create fails with ErrDuplicate.
type RowStore interface {
	CreateRow(ctx context.Context, row *UploadedRow) error
	// FindRowsByBatch returns the rows of one batch ordered by row number.
	FindRowsByBatch(ctx context.Context, batchID string) ([]*UploadedRow, error)
	// FindRowsByEmployee returns the rows of one employee, newest first.
	FindRowsByEmployee(ctx context.Context, employeeID string) ([]*UploadedRow, error)
	// BatchSummaries aggregates rows per batch, newest batch first.
	BatchSummaries(ctx context.Context, limit int) ([]BatchSummary, error)
	Summary(ctx context.Context) (DataSummary, error)
}

// EmployeeDirectory resolves employee identifiers found in uploads.
type EmployeeDirectory interface {
	// FindActiveEmployee returns the active employee with the business
	// identifier employeeID, or ErrEmployeeNotFound.
	FindActiveEmployee(ctx context.Context, employeeID string) (*Employee, error)
}

// EmployeeStore is an EmployeeDirectory that can also be maintained.
// Employee id and email are unique; conflicts fail with ErrDuplicate.
type EmployeeStore interface {
	EmployeeDirectory
	CreateEmployee(ctx context.Context, e *Employee) error
	ListActiveEmployees(ctx context.Context) ([]*Employee, error)
	// ListByManager returns the active direct reports of managerID.
	ListByManager(ctx context.Context, managerID string) ([]*Employee, error)
	DeactivateEmployee(ctx context.Context, employeeID string) error
}

// Employee is a directory entry.
type Employee struct {
	ID          string    `json:"id"`
	EmployeeID  string    `json:"employeeId" validate:"required"`
	FirstName   string    `json:"firstName" validate:"required"`
	LastName    string    `json:"lastName" validate:"required"`
	Email       string    `json:"email" validate:"required,email"`
	Phone       string    `json:"phone,omitempty"`
	Designation string    `json:"designation" validate:"required"`
	Department  string    `json:"department" validate:"required"`
	Division    string    `json:"division,omitempty"`
	Geography   string    `json:"geography,omitempty"`
	ManagerID   string    `json:"managerId,omitempty"` // EmployeeID of the manager
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FullName returns "First Last".
func (e *Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// BatchSummary aggregates the rows of one upload batch.
type BatchSummary struct {
	UploadBatchID  string    `json:"uploadBatchId"`
	TemplateID     string    `json:"templateId"`
	TemplateName   string    `json:"templateName,omitempty"`
	UploadedBy     string    `json:"uploadedBy,omitempty"`
	UploadedAt     time.Time `json:"uploadedAt"`
	TotalRecords   int       `json:"totalRecords"`
	ValidatedCount int       `json:"validatedCount"`
	PendingCount   int       `json:"pendingCount"`
	ErrorCount     int       `json:"errorCount"`
}

// DataSummary aggregates every stored row.
type DataSummary struct {
	TotalRecords   int `json:"totalRecords"`
	TotalBatches   int `json:"totalBatches"`
	ValidatedCount int `json:"validatedCount"`
	PendingCount   int `json:"pendingCount"`
	ErrorCount     int `json:"errorCount"`
}
