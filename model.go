package xlform

import "time"

// CellType is the structural role of a template cell.
type CellType string

const (
	CellHeader   CellType = "header"
	CellFormula  CellType = "formula"
	CellData     CellType = "data"
	CellMetadata CellType = "metadata"
)

// DataType is the inferred kind of data a cell or column holds.
type DataType string

const (
	DataString     DataType = "string"
	DataNumber     DataType = "number"
	DataDate       DataType = "date"
	DataFormula    DataType = "formula"
	DataPercentage DataType = "percentage"
)

// ResultType is the expected kind of a formula's result.
type ResultType string

const (
	ResultNumber     ResultType = "number"
	ResultPercentage ResultType = "percentage"
	ResultString     ResultType = "string"
)

// RowStatus is the lifecycle state of an uploaded row.
type RowStatus string

const (
	StatusPending   RowStatus = "pending"
	StatusValidated RowStatus = "validated"
	StatusError     RowStatus = "error"
	StatusProcessed RowStatus = "processed"
)

// CellDefinition is one non-empty template cell.
type CellDefinition struct {
	Row                 int      `json:"row"`
	Col                 int      `json:"col"`
	Address             string   `json:"address"`
	Value               any      `json:"value"` // string, float64, bool or nil
	Formula             string   `json:"formula,omitempty"`
	FormulaDependencies []string `json:"formulaDependencies,omitempty"`
	Type                CellType `json:"type"`
	IsLocked            bool     `json:"isLocked"`
	DataType            DataType `json:"dataType"`
	ColumnHeader        string   `json:"columnHeader,omitempty"`
	NumberFormat        string   `json:"numberFormat,omitempty"`
}

// ColumnMapping describes the semantic role of one header column.
type ColumnMapping struct {
	ColumnIndex int      `json:"columnIndex"`
	HeaderName  string   `json:"headerName"`
	MappedField Field    `json:"mappedField,omitempty"` // FieldNone when unmapped
	DataType    DataType `json:"dataType"`
	IsRequired  bool     `json:"isRequired"`
}

// ColumnName returns the column letters, derived from ColumnIndex.
func (m ColumnMapping) ColumnName() string {
	return ColumnIndexToLetter(m.ColumnIndex)
}

// FormulaDefinition records one formula cell and the cells it reads.
type FormulaDefinition struct {
	CellAddress    string     `json:"cellAddress"`
	Row            int        `json:"row"`
	Col            int        `json:"col"`
	Formula        string     `json:"formula"`
	DependentCells []string   `json:"dependentCells"`
	ResultType     ResultType `json:"resultType"`
}

// EmployeeFieldMapping holds the column index of each semantic field,
// -1 meaning unmapped.
type EmployeeFieldMapping struct {
	EmployeeIDColumn  int `json:"employeeIdColumn"`
	NameColumn        int `json:"nameColumn"`
	EmailColumn       int `json:"emailColumn"`
	DesignationColumn int `json:"designationColumn"`
	DepartmentColumn  int `json:"departmentColumn"`
	DivisionColumn    int `json:"divisionColumn"`
	GeographyColumn   int `json:"geographyColumn"`
}

// NewEmployeeFieldMapping returns a mapping with every field unmapped.
func NewEmployeeFieldMapping() EmployeeFieldMapping {
	return EmployeeFieldMapping{
		EmployeeIDColumn:  -1,
		NameColumn:        -1,
		EmailColumn:       -1,
		DesignationColumn: -1,
		DepartmentColumn:  -1,
		DivisionColumn:    -1,
		GeographyColumn:   -1,
	}
}

// Column returns the column mapped to field, or -1.
func (m *EmployeeFieldMapping) Column(field Field) int {
	if p := m.slot(field); p != nil {
		return *p
	}
	return -1
}

// assign records col for field unless the field is already mapped.
// It reports whether the mapping changed.
func (m *EmployeeFieldMapping) assign(field Field, col int) bool {
	p := m.slot(field)
	if p == nil || *p >= 0 {
		return false
	}
	*p = col
	return true
}

func (m *EmployeeFieldMapping) slot(field Field) *int {
	switch field {
	case FieldEmployeeID:
		return &m.EmployeeIDColumn
	case FieldName:
		return &m.NameColumn
	case FieldEmail:
		return &m.EmailColumn
	case FieldDesignation:
		return &m.DesignationColumn
	case FieldDepartment:
		return &m.DepartmentColumn
	case FieldDivision:
		return &m.DivisionColumn
	case FieldGeography:
		return &m.GeographyColumn
	}
	return nil
}

// TemplateMetadata is the range bookkeeping of a template.
type TemplateMetadata struct {
	TotalRows       int      `json:"totalRows"`
	TotalColumns    int      `json:"totalColumns"`
	FormulaRows     []int    `json:"formulaRows"`
	DataInputRanges []string `json:"dataInputRanges"`
	ProtectedRanges []string `json:"protectedRanges"`
	FormulaCells    []string `json:"formulaCells"`
}

// OriginalFile is the retained upload the template was extracted from.
type OriginalFile struct {
	FileName string `json:"fileName"`
	Data     []byte `json:"data"`
}

// TemplateModel is the structural artifact extracted from a reference
// spreadsheet. It is immutable after creation except for IsActive.
type TemplateModel struct {
	ID                   string               `json:"id"`
	TemplateName         string               `json:"template_name"`
	Description          string               `json:"description"`
	Version              string               `json:"version"`
	SheetName            string               `json:"sheet_name"`
	SheetStructure       []CellDefinition     `json:"sheet_structure"`
	ColumnMappings       []ColumnMapping      `json:"column_mappings"`
	FormulaDefinitions   []FormulaDefinition  `json:"formula_definitions"`
	EmployeeFieldMapping EmployeeFieldMapping `json:"employee_field_mapping"`
	HeaderRowIndex       int                  `json:"header_row_index"`
	DataStartRow         int                  `json:"data_start_row"`
	Metadata             TemplateMetadata     `json:"metadata"`
	OriginalFile         *OriginalFile        `json:"original_file,omitempty"`
	IsActive             bool                 `json:"is_active"`
	CreatedBy            string               `json:"created_by,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
}

// HeaderColumns returns column index → header name for every mapped
// header column.
func (t *TemplateModel) HeaderColumns() map[int]string {
	cols := make(map[int]string, len(t.ColumnMappings))
	for _, m := range t.ColumnMappings {
		cols[m.ColumnIndex] = m.HeaderName
	}
	return cols
}

// UploadedRow is one processed data row tied to a template.
type UploadedRow struct {
	ID               string    `json:"id"`
	TemplateID       string    `json:"template_id"`
	EmployeeRef      string    `json:"employee_ref"` // directory key of the employee
	EmployeeID       string    `json:"employee_id"`
	UploadBatchID    string    `json:"upload_batch_id"`
	RowNumber        int       `json:"row_number"` // 1-based sheet row
	RawData          RowData   `json:"raw_data"`
	Data             RowData   `json:"data"`
	CalculatedData   RowData   `json:"calculated_data"`
	Status           RowStatus `json:"status"`
	ValidationErrors []string  `json:"validation_errors"`
	UploadedBy       string    `json:"uploaded_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
