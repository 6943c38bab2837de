package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/javajack/xlform"
	"github.com/spf13/cobra"
)

func newTemplateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Create, inspect and delete templates",
	}

	var name, description, createdBy string
	create := &cobra.Command{
		Use:   "create FILE",
		Short: "Extract a template from a reference workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			staged, err := stage(args[0])
			if err != nil {
				return err
			}
			t, err := a.svc.CreateTemplate(cmd.Context(), xlform.TemplateUpload{
				Path:        staged,
				FileName:    filepath.Base(args[0]),
				Name:        name,
				Description: description,
				CreatedBy:   createdBy,
			})
			if err != nil {
				return err
			}
			preview, err := a.svc.TemplatePreview(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			return a.printJSON(preview)
		},
	}
	create.Flags().StringVar(&name, "name", "", "Base template name")
	create.Flags().StringVar(&description, "description", "", "Template description")
	create.Flags().StringVar(&createdBy, "created-by", "", "Creator recorded on the template")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			templates, err := a.svc.ListTemplates(cmd.Context())
			if err != nil {
				return err
			}
			type item struct {
				ID           string    `json:"id"`
				TemplateName string    `json:"templateName"`
				Description  string    `json:"description"`
				Version      string    `json:"version"`
				Columns      int       `json:"columns"`
				Formulas     int       `json:"formulas"`
				CreatedAt    time.Time `json:"createdAt"`
			}
			items := make([]item, 0, len(templates))
			for _, t := range templates {
				items = append(items, item{
					ID:           t.ID,
					TemplateName: t.TemplateName,
					Description:  t.Description,
					Version:      t.Version,
					Columns:      len(t.ColumnMappings),
					Formulas:     len(t.FormulaDefinitions),
					CreatedAt:    t.CreatedAt,
				})
			}
			return a.printJSON(items)
		},
	}

	var tree bool
	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a template's structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tree {
				t, err := a.svc.Template(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(a.out, xlform.Describe(t))
				return nil
			}
			preview, err := a.svc.TemplatePreview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(preview)
		},
	}
	show.Flags().BoolVar(&tree, "tree", false, "Print a readable tree instead of JSON")

	var output string
	download := &cobra.Command{
		Use:   "download ID",
		Short: "Download a template workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.svc.DownloadTemplate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.writeDownload(f, output)
		},
	}
	download.Flags().StringVarP(&output, "output", "o", "", "Output file (default: the template's file name)")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Deactivate a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeleteTemplate(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.printJSON(map[string]string{"deleted": args[0]})
		},
	}

	cmd.AddCommand(create, list, show, download, del)
	return cmd
}

func newUploadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Validate and process filled-in workbooks",
	}

	validate := &cobra.Command{
		Use:   "validate TEMPLATE_ID FILE",
		Short: "Check a workbook against a template without storing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			staged, err := stage(args[1])
			if err != nil {
				return err
			}
			report, err := a.svc.ValidateUploadFile(cmd.Context(), args[0], staged)
			if err != nil {
				return err
			}
			return a.printJSON(report)
		},
	}

	var uploadedBy string
	process := &cobra.Command{
		Use:   "process TEMPLATE_ID FILE",
		Short: "Store the rows of a workbook as a new batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			staged, err := stage(args[1])
			if err != nil {
				return err
			}
			res, err := a.svc.ProcessUpload(cmd.Context(), xlform.UploadRequest{
				TemplateID: args[0],
				Path:       staged,
				UploadedBy: uploadedBy,
			})
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	process.Flags().StringVar(&uploadedBy, "uploaded-by", "", "Uploader recorded on every row")

	cmd.AddCommand(validate, process)
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Inspect and export upload batches",
	}

	show := &cobra.Command{
		Use:   "show BATCH_ID",
		Short: "Show a batch's rows with calculated values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := a.svc.BatchWithCalculations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(detail)
		},
	}

	var output string
	export := &cobra.Command{
		Use:   "export BATCH_ID",
		Short: "Export a batch as a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.svc.ExportBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.writeDownload(f, output)
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "", "Output file (default: generated name)")

	cmd.AddCommand(show, export)
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recent upload batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			batches, err := a.svc.UploadHistory(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(batches)
		},
	}
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show totals over all stored rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := a.svc.DataSummary(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(sum)
		},
	}
}

func newEmployeeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "employee",
		Short: "Maintain the employee directory",
	}

	var e xlform.Employee
	add := &cobra.Command{
		Use:   "add",
		Short: "Register an employee",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.svc.RegisterEmployee(cmd.Context(), &e); err != nil {
				return err
			}
			return a.printJSON(e)
		},
	}
	f := add.Flags()
	f.StringVar(&e.EmployeeID, "id", "", "Employee ID (required)")
	f.StringVar(&e.FirstName, "first-name", "", "First name (required)")
	f.StringVar(&e.LastName, "last-name", "", "Last name (required)")
	f.StringVar(&e.Email, "email", "", "Email address (required)")
	f.StringVar(&e.Phone, "phone", "", "Phone number")
	f.StringVar(&e.Designation, "designation", "", "Designation (required)")
	f.StringVar(&e.Department, "department", "", "Department (required)")
	f.StringVar(&e.Division, "division", "", "Division")
	f.StringVar(&e.Geography, "geography", "", "Geography")
	f.StringVar(&e.ManagerID, "manager", "", "Employee ID of the manager")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active employees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			employees, err := a.svc.ListEmployees(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(employees)
		},
	}

	deactivate := &cobra.Command{
		Use:   "deactivate EMPLOYEE_ID",
		Short: "Deactivate an employee without direct reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeactivateEmployee(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.printJSON(map[string]string{"deactivated": args[0]})
		},
	}

	data := &cobra.Command{
		Use:   "data EMPLOYEE_ID",
		Short: "List an employee's uploaded rows, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.svc.DataByEmployee(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(rows)
		},
	}

	cmd.AddCommand(add, list, deactivate, data)
	return cmd
}
