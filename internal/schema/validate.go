package schema

import (
	"fmt"
	"regexp"

	rerrors "github.com/dublyo/reciper/internal/errors"
)

// Validate checks value against d's declared type and constraints
// (spec §3.1 invariants, §8 property 4: "the validator accepts a value iff
// it satisfies every declared constraint"). On success it returns the
// value coerced to its canonical Go representation (numbers as float64,
// arrays as []any, objects as map[string]any). On failure it returns a
// *rerrors.StructuredError listing every violated constraint, not just the
// first.
func (d *Definition) Validate(value any) (any, error) {
	return d.validateAt(value, d.Name)
}

func (d *Definition) validateAt(value any, path string) (any, error) {
	if !d.Kind.Valid() {
		return nil, rerrors.NewAt(rerrors.CodeSchemaValidationError, fmt.Sprintf("unrecognized variable type %q", d.Kind), path)
	}

	switch d.Kind {
	case KindString:
		return d.validateString(value, path)
	case KindNumber:
		return d.validateNumber(value, path)
	case KindBoolean:
		return d.validateBoolean(value, path)
	case KindEnum:
		return d.validateEnum(value, path)
	case KindArray:
		return d.validateArray(value, path)
	case KindObject:
		return d.validateObject(value, path)
	case KindFile, KindDirectory:
		return d.validateFileOrDirectory(value, path)
	}
	return nil, rerrors.NewAt(rerrors.CodeSchemaValidationError, fmt.Sprintf("unrecognized variable type %q", d.Kind), path)
}

func typeMismatch(path, want string, got any) error {
	return rerrors.NewAt(rerrors.CodeTypeMismatch, fmt.Sprintf("expected %s, got %T", want, got), path)
}

func (d *Definition) validateString(value any, path string) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, typeMismatch(path, "string", value)
	}
	var errs []error
	if d.MinLength != nil && len(s) < *d.MinLength {
		errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
			fmt.Sprintf("length %d is below min_length %d", len(s), *d.MinLength), path))
	}
	if d.MaxLength != nil && len(s) > *d.MaxLength {
		errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
			fmt.Sprintf("length %d exceeds max_length %d", len(s), *d.MaxLength), path))
	}
	if d.Pattern != "" {
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			errs = append(errs, rerrors.NewAt(rerrors.CodeSchemaValidationError,
				fmt.Sprintf("invalid pattern %q: %v", d.Pattern, err), path))
		} else if !re.MatchString(s) {
			errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
				fmt.Sprintf("value %q does not match pattern %q", s, d.Pattern), path))
		}
	}
	if merged := rerrors.Batch(errs...); merged != nil {
		return nil, merged
	}
	return s, nil
}

func (d *Definition) validateNumber(value any, path string) (any, error) {
	n, ok := toFloat64(value)
	if !ok {
		return nil, typeMismatch(path, "number", value)
	}
	var errs []error
	if d.Min != nil && n < *d.Min {
		errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
			fmt.Sprintf("%v is below min %v", n, *d.Min), path))
	}
	if d.Max != nil && n > *d.Max {
		errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
			fmt.Sprintf("%v exceeds max %v", n, *d.Max), path))
	}
	if merged := rerrors.Batch(errs...); merged != nil {
		return nil, merged
	}
	return n, nil
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (d *Definition) validateBoolean(value any, path string) (any, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, typeMismatch(path, "boolean", value)
	}
	return b, nil
}

func (d *Definition) validateEnum(value any, path string) (any, error) {
	if len(d.Values) == 0 {
		return nil, rerrors.NewAt(rerrors.CodeSchemaValidationError, "enum variable declares no values", path)
	}
	s, ok := value.(string)
	if !ok {
		return nil, typeMismatch(path, "enum string", value)
	}
	for _, allowed := range d.Values {
		if s == allowed {
			return s, nil
		}
	}
	return nil, rerrors.NewAt(rerrors.CodeConstraintViolation,
		fmt.Sprintf("value %q is not one of %v", s, d.Values), path).
		WithSuggestion(fmt.Sprintf("use one of: %v", d.Values))
}

func (d *Definition) validateArray(value any, path string) (any, error) {
	items, ok := toSlice(value)
	if !ok {
		return nil, typeMismatch(path, "array", value)
	}
	var errs []error
	if d.MinItems != nil && len(items) < *d.MinItems {
		errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
			fmt.Sprintf("%d items is below min_items %d", len(items), *d.MinItems), path))
	}
	if d.MaxItems != nil && len(items) > *d.MaxItems {
		errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
			fmt.Sprintf("%d items exceeds max_items %d", len(items), *d.MaxItems), path))
	}

	out := make([]any, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		var validated any
		var err error
		if d.ItemSchema != nil {
			validated, err = d.ItemSchema.validateAt(item, itemPath)
		} else if d.ItemKind != "" {
			itemDef := &Definition{Name: itemPath, Kind: d.ItemKind}
			validated, err = itemDef.validateAt(item, itemPath)
		} else {
			validated = item
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[i] = validated
		if d.UniqueItems {
			key := fmt.Sprintf("%v", validated)
			if _, dup := seen[key]; dup {
				errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
					fmt.Sprintf("duplicate item %v violates unique_items", validated), itemPath))
			}
			seen[key] = struct{}{}
		}
	}
	if merged := rerrors.Batch(errs...); merged != nil {
		return nil, merged
	}
	return out, nil
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func (d *Definition) validateObject(value any, path string) (any, error) {
	obj, ok := toMap(value)
	if !ok {
		return nil, typeMismatch(path, "object", value)
	}
	var errs []error
	for _, req := range d.RequiredProperties {
		if _, ok := obj[req]; !ok {
			errs = append(errs, rerrors.NewAt(rerrors.CodeMissingRequiredVariable,
				fmt.Sprintf("required property %q is missing", req), path+"."+req))
		}
	}

	out := make(map[string]any, len(obj))
	for key, val := range obj {
		propPath := path + "." + key
		propDef, known := d.Properties[key]
		if !known {
			if !d.AdditionalProperties {
				errs = append(errs, rerrors.NewAt(rerrors.CodeUnknownVariableReference,
					fmt.Sprintf("property %q is not declared and additional_properties is false", key), propPath))
				continue
			}
			out[key] = val
			continue
		}
		validated, err := propDef.validateAt(val, propPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[key] = validated
	}
	if merged := rerrors.Batch(errs...); merged != nil {
		return nil, merged
	}
	return out, nil
}

func toMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	}
	return nil, false
}

func (d *Definition) validateFileOrDirectory(value any, path string) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, typeMismatch(path, string(d.Kind), value)
	}
	if len(d.Extensions) > 0 {
		matched := false
		for _, ext := range d.Extensions {
			if hasSuffixFold(s, ext) {
				matched = true
				break
			}
		}
		if !matched {
			return nil, rerrors.NewAt(rerrors.CodeConstraintViolation,
				fmt.Sprintf("%q does not have one of the allowed extensions %v", s, d.Extensions), path)
		}
	}
	// must_exist is checked by resolver.CheckExistence, which has filesystem
	// access; this package stays filesystem-free so it can be unit tested in
	// isolation (spec §9: pass collaborators through context, not globals).
	return s, nil
}

func hasSuffixFold(s, suffix string) bool {
	if len(suffix) > len(s) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := range tail {
		a, b := tail[i], suffix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// ValidateDefault validates d's own Default value against its constraints,
// if a default is set (spec §3.1 invariant: "default (if present) must
// satisfy the variable's own constraints").
func (d *Definition) ValidateDefault() error {
	if d.Default == nil {
		return nil
	}
	_, err := d.Validate(d.Default)
	return err
}
