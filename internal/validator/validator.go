package validator

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// FieldError reports the first rule a struct field broke
type FieldError struct {
	Field string
	Rule  string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field '%s' %s", e.Field, e.Msg)
}

// Validator validates structs based on their tags
type Validator struct {
	tagName string
}

// New creates a new validator
func New() *Validator {
	return &Validator{
		tagName: "schema",
	}
}

// Validate validates a struct based on its schema tags.
// Supported rules: required, min:N and max:N (numbers by value; strings,
// slices and maps by length).
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", val.Kind())
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		structField := typ.Field(i)

		if !structField.IsExported() {
			continue
		}

		schemaTag := structField.Tag.Get(v.tagName)
		jsonTag := structField.Tag.Get("json")

		// Skip fields with json:"-"
		if jsonTag == "-" {
			continue
		}

		fieldName := getFieldName(structField, jsonTag)

		if err := v.validateField(field, schemaTag, fieldName); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateField(value reflect.Value, tag string, fieldName string) error {
	if tag == "" {
		return nil
	}

	required := strings.Contains(tag, "required")
	if isZeroValue(value) {
		if required {
			return &FieldError{Field: fieldName, Rule: "required", Msg: "is required"}
		}
		return nil
	}

	for _, part := range strings.Split(tag, ",") {
		if err := v.validateTag(value, strings.TrimSpace(part), fieldName); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateTag(value reflect.Value, tag string, fieldName string) error {
	switch {
	case strings.HasPrefix(tag, "min:"):
		return validateBound(value, tag[4:], fieldName, "min")
	case strings.HasPrefix(tag, "max:"):
		return validateBound(value, tag[4:], fieldName, "max")
	}
	return nil
}

func validateBound(value reflect.Value, limitStr string, fieldName string, rule string) error {
	limit, err := strconv.ParseFloat(limitStr, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value for field '%s': %s", rule, fieldName, limitStr)
	}

	var (
		actual float64
		unit   string
	)
	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		actual = float64(value.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		actual = float64(value.Uint())
	case reflect.Float32, reflect.Float64:
		actual = value.Float()
	case reflect.String:
		actual, unit = float64(len(value.String())), " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		actual, unit = float64(value.Len()), " items"
	default:
		return nil
	}

	if rule == "min" && actual < limit {
		return &FieldError{Field: fieldName, Rule: rule, Msg: fmt.Sprintf("must be at least %s%s", limitStr, unit)}
	}
	if rule == "max" && actual > limit {
		return &FieldError{Field: fieldName, Rule: rule, Msg: fmt.Sprintf("must be at most %s%s", limitStr, unit)}
	}
	return nil
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

func getFieldName(field reflect.StructField, jsonTag string) string {
	if jsonTag == "" {
		return field.Name
	}

	name := strings.TrimSpace(strings.Split(jsonTag, ",")[0])
	if name == "" {
		return field.Name
	}

	return name
}

// DefaultValidator is the default validator instance
var DefaultValidator = New()

// Validate validates a struct using the default validator
func Validate(s interface{}) error {
	return DefaultValidator.Validate(s)
}
