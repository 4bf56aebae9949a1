package deployment

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrUnknownFieldType is returned for field types without an option schema
	ErrUnknownFieldType = errors.New("unknown field type")
	// ErrInvalidOptions is returned when options do not satisfy their type's schema
	ErrInvalidOptions = errors.New("invalid field options")
)

// NumberOptions configures number and percent fields
type NumberOptions struct {
	Precision *int `json:"precision" validate:"required,gte=0,lte=8"`
}

// CurrencyOptions configures currency fields
type CurrencyOptions struct {
	Precision *int   `json:"precision" validate:"required,gte=0,lte=7"`
	Symbol    string `json:"symbol" validate:"required"`
}

// Choice is one entry of a select field
type Choice struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name" validate:"required"`
	Color string `json:"color,omitempty"`
}

// SelectOptions configures singleSelect and multipleSelects fields
type SelectOptions struct {
	Choices []Choice `json:"choices" validate:"required,min=1,dive"`
}

// CheckboxOptions configures checkbox fields
type CheckboxOptions struct {
	Icon  string `json:"icon" validate:"required"`
	Color string `json:"color" validate:"required"`
}

// RatingOptions configures rating fields
type RatingOptions struct {
	Icon  string `json:"icon" validate:"required"`
	Max   int    `json:"max" validate:"required,gte=1,lte=10"`
	Color string `json:"color" validate:"required"`
}

// NamedFormat is a date or time format selector
type NamedFormat struct {
	Name   string `json:"name" validate:"required"`
	Format string `json:"format,omitempty"`
}

// DateOptions configures date fields
type DateOptions struct {
	DateFormat NamedFormat `json:"dateFormat"`
}

// DateTimeOptions configures dateTime fields
type DateTimeOptions struct {
	DateFormat NamedFormat `json:"dateFormat"`
	TimeFormat NamedFormat `json:"timeFormat"`
	TimeZone   string      `json:"timeZone" validate:"required"`
}

// fieldTypes maps each creatable field type to its option schema. A nil
// schema means the type takes no options.
var fieldTypes = map[string]reflect.Type{
	"singleLineText":  nil,
	"multilineText":   nil,
	"richText":        nil,
	"email":           nil,
	"url":             nil,
	"phoneNumber":     nil,
	"number":          reflect.TypeOf(NumberOptions{}),
	"percent":         reflect.TypeOf(NumberOptions{}),
	"currency":        reflect.TypeOf(CurrencyOptions{}),
	"singleSelect":    reflect.TypeOf(SelectOptions{}),
	"multipleSelects": reflect.TypeOf(SelectOptions{}),
	"checkbox":        reflect.TypeOf(CheckboxOptions{}),
	"rating":          reflect.TypeOf(RatingOptions{}),
	"date":            reflect.TypeOf(DateOptions{}),
	"dateTime":        reflect.TypeOf(DateTimeOptions{}),
}

// nativeTypes are SQL column types read back from database environments.
// They are created verbatim and take no options.
var nativeTypes = map[string]bool{
	"text": true, "varchar": true, "character varying": true, "char": true, "character": true,
	"integer": true, "int": true, "bigint": true, "smallint": true, "tinyint": true,
	"numeric": true, "decimal": true, "real": true, "double precision": true, "double": true, "float": true,
	"boolean": true, "bool": true,
	"date": true, "datetime": true, "timestamp": true,
	"timestamp without time zone": true, "timestamp with time zone": true, "timestamptz": true,
	"json": true, "jsonb": true, "blob": true, "bytea": true, "uuid": true,
}

// nativeTypePattern is the whole grammar of a native type: a lowercase name,
// an optional length or precision and scale, and an optional array suffix
var nativeTypePattern = regexp.MustCompile(`^([a-z]+(?: [a-z]+)*)\s*(?:\(\d+(?:\s*,\s*\d+)?\))?(?:\[\])?$`)

// IsNativeType reports whether t is a plain SQL column type such as
// "varchar(255)" or "numeric(18, 2)". Native types are written into DDL
// verbatim, so anything outside the grammar is rejected.
func IsNativeType(t string) bool {
	m := nativeTypePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(t)))
	if m == nil {
		return false
	}
	return nativeTypes[m[1]]
}

// FieldTypes returns the names of the creatable canonical field types
func FieldTypes() []string {
	names := make([]string, 0, len(fieldTypes))
	for name := range fieldTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateOptions checks a field's options against the schema of its type
func ValidateOptions(fieldType string, options map[string]any) error {
	// "date" is both a canonical type and a SQL column type; without options
	// it is the column type.
	if len(options) == 0 && IsNativeType(fieldType) {
		return nil
	}

	schema, ok := fieldTypes[fieldType]
	if !ok {
		if IsNativeType(fieldType) {
			return fmt.Errorf("%s takes no options: %w", fieldType, ErrInvalidOptions)
		}
		return fmt.Errorf("%q: %w", fieldType, ErrUnknownFieldType)
	}

	if schema == nil {
		if len(options) > 0 {
			return fmt.Errorf("%s takes no options: %w", fieldType, ErrInvalidOptions)
		}
		return nil
	}

	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", fieldType, ErrInvalidOptions, err)
	}
	target := reflect.New(schema).Interface()
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%s: %w: %v", fieldType, ErrInvalidOptions, err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%s: %w: %v", fieldType, ErrInvalidOptions, err)
	}
	return nil
}
