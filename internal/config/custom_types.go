// Package config handles application configuration.
package config

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FlexBool is a boolean type that can be unmarshalled from a boolean, a string, or a number.
type FlexBool bool

// UnmarshalYAML implements the yaml.Unmarshaler interface for FlexBool.
func (fb *FlexBool) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!bool":
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		*fb = FlexBool(b)
	case "!!str":
		b, err := strconv.ParseBool(value.Value)
		if err != nil {
			return fmt.Errorf("cannot unmarshal string %q into FlexBool", value.Value)
		}
		*fb = FlexBool(b)
	case "!!int":
		i, err := strconv.Atoi(value.Value)
		if err != nil {
			return err
		}
		*fb = FlexBool(i != 0)
	case "!!float":
		f, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return err
		}
		*fb = FlexBool(f != 0)
	default:
		return fmt.Errorf("cannot unmarshal %s into FlexBool", value.Tag)
	}
	return nil
}

// Bool returns the underlying boolean value.
func (fb FlexBool) Bool() bool { return bool(fb) }

// Decimal wraps decimal.Decimal so it can be unmarshalled from a YAML
// number or string without ever passing through a binary float.
type Decimal struct {
	d decimal.Decimal
}

// NewDecimalFromString builds a Decimal, panicking on malformed input.
// Intended for defaults and tests with literal values.
func NewDecimalFromString(s string) Decimal {
	return Decimal{d: decimal.RequireFromString(s)}
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Decimal.
func (cd *Decimal) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int", "!!float", "!!str":
		d, err := decimal.NewFromString(value.Value)
		if err != nil {
			return fmt.Errorf("cannot unmarshal %q into Decimal: %w", value.Value, err)
		}
		cd.d = d
	default:
		return fmt.Errorf("cannot unmarshal %s into Decimal", value.Tag)
	}
	return nil
}

// Decimal returns the wrapped decimal value.
func (cd Decimal) Decimal() decimal.Decimal { return cd.d }

// IsZero reports whether the value is unset or zero.
func (cd Decimal) IsZero() bool { return cd.d.IsZero() }

// String returns the decimal rendered as a plain number.
func (cd Decimal) String() string { return cd.d.String() }
