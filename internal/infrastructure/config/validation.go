package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator is a wrapper around go-playground/validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance with custom validation rules
func NewValidator() *Validator {
	v := validator.New()

	v.RegisterStructValidation(validateRestock, RestockConfig{})

	return &Validator{
		validate: v,
	}
}

// Validate validates a struct using validation tags
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into readable messages
func (v *Validator) formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrs {
			messages = append(messages, fmt.Sprintf(
				"field '%s' failed validation: %s (value: '%v')",
				e.Namespace(),
				e.Tag(),
				e.Value(),
			))
		}
		return fmt.Errorf("validation failed:\n  %s", strings.Join(messages, "\n  "))
	}
	return err
}

func validateRestock(sl validator.StructLevel) {
	r := sl.Current().Interface().(RestockConfig)
	if r.MaxDelay < r.MinDelay {
		sl.ReportError(r.MaxDelay, "MaxDelay", "max_delay", "gtefield", "MinDelay")
	}
}

// ValidateConfig validates the entire configuration
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		return err
	}
	return validateTopology(&cfg.Factory)
}

// validateTopology checks the references between catalog, inventories and lines
func validateTopology(f *FactoryConfig) error {
	var problems []string

	if f.Worker.PartsPerJob > len(f.Catalog) {
		problems = append(problems, fmt.Sprintf(
			"parts_per_job (%d) exceeds catalog size (%d)", f.Worker.PartsPerJob, len(f.Catalog)))
	}

	inventories := make(map[string]bool, len(f.Inventories))
	for _, inv := range f.Inventories {
		if inventories[inv.Name] {
			problems = append(problems, fmt.Sprintf("duplicate inventory %q", inv.Name))
		}
		inventories[inv.Name] = true
	}

	lines := make(map[string]bool, len(f.Lines))
	workers := make(map[string]string)
	for _, line := range f.Lines {
		if lines[line.Name] {
			problems = append(problems, fmt.Sprintf("duplicate line %q", line.Name))
		}
		lines[line.Name] = true

		if !inventories[line.Inventory] {
			problems = append(problems, fmt.Sprintf("line %q references unknown inventory %q", line.Name, line.Inventory))
		}
		for _, worker := range line.Workers {
			if owner, taken := workers[worker]; taken {
				problems = append(problems, fmt.Sprintf("worker %q assigned to both %q and %q", worker, owner, line.Name))
				continue
			}
			workers[worker] = line.Name
		}
	}

	if len(problems) > 0 {
		return errors.New("topology validation failed:\n  " + strings.Join(problems, "\n  "))
	}
	return nil
}
