package xlform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var employeeValidator = validator.New(validator.WithRequiredStructEnabled())

// NormalizeEmployee trims the employee's fields and lowercases the email.
func NormalizeEmployee(e *Employee) {
	e.EmployeeID = strings.TrimSpace(e.EmployeeID)
	e.FirstName = strings.TrimSpace(e.FirstName)
	e.LastName = strings.TrimSpace(e.LastName)
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	e.Phone = strings.TrimSpace(e.Phone)
	e.Designation = strings.TrimSpace(e.Designation)
	e.Department = strings.TrimSpace(e.Department)
	e.Division = strings.TrimSpace(e.Division)
	e.Geography = strings.TrimSpace(e.Geography)
	e.ManagerID = strings.TrimSpace(e.ManagerID)
}

// ValidateEmployee checks the required fields of e. Failures wrap
// ErrInvalidEmployee and list every offending field.
func ValidateEmployee(e *Employee) error {
	err := employeeValidator.Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidEmployee, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email address")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidEmployee, strings.Join(msgs, ", "))
}
