package wizard

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"poster-studio/internal/catalog"
	"poster-studio/internal/poster"
)

var fieldLabels = map[string]string{
	"Name":            "product name",
	"ProductImages":   "product images",
	"ReferenceImages": "reference images",
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func validateSubmission(v *validator.Validate, sub poster.Submission) error {
	var problems []string

	if err := v.Struct(sub); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	for i, img := range sub.ProductImages {
		if img.IsZero() {
			problems = append(problems, fmt.Sprintf("product image %d is empty", i+1))
		}
	}
	for i, img := range sub.ReferenceImages {
		if img.IsZero() {
			problems = append(problems, fmt.Sprintf("reference image %d is empty", i+1))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Subject: "submission", Problems: problems}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "min":
		return fmt.Sprintf("at least %s %s required", fe.Param(), label)
	case "max":
		return fmt.Sprintf("at most %s %s allowed", fe.Param(), label)
	default:
		return fmt.Sprintf("%s failed %s", label, fe.Tag())
	}
}

func validateConfig(c *catalog.Catalog, cfg poster.GenerationConfig) error {
	if err := c.CheckConfig(cfg); err != nil {
		return &ValidationError{Subject: "generation config", Problems: []string{err.Error()}}
	}
	return nil
}
