package http

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(useJSONTagNames)
	return v
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// Validate checks a request DTO against its validate tags and flattens the
// result into one client-facing message.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fe.Field())
	}
	return fmt.Errorf("invalid or missing fields: %s", strings.Join(fields, ", "))
}
