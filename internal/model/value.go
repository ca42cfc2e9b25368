package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DataType declares how a stored text value should be interpreted.
// Attribute storage is schema-free (arbitrary attr_slug per project), so the
// value column is always text; the declared type on the owning attribute
// definition or dimension directs rehydration instead of sniffing the value.
type DataType string

const (
	TypeText    DataType = "text"
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeEnum    DataType = "enum"
	TypeList    DataType = "list"
)

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeBoolean, TypeEnum, TypeList:
		return true
	}
	return false
}

// ValidForDimension reports whether t is allowed on a Dimension.
func (t DataType) ValidForDimension() bool {
	switch t {
	case TypeText, TypeNumber, TypeBoolean, TypeEnum:
		return true
	}
	return false
}

// Value is the tagged-variant view of a decoded stored value.
type Value struct {
	Type   DataType `json:"type"`
	Text   string   `json:"text,omitempty"`
	Number float64  `json:"number,omitempty"`
	Bool   bool     `json:"bool,omitempty"`
	List   []string `json:"list,omitempty"`
}

// String renders the value for display.
func (v Value) String() string {
	switch v.Type {
	case TypeNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case TypeBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case TypeList:
		return strings.Join(v.List, ", ")
	default:
		return v.Text
	}
}

// EncodeValue normalizes a dynamically-typed value to its stable text
// encoding for the declared type: booleans become "0"/"1", numbers a
// canonical decimal form, lists a JSON array. The encoding is what gets
// stored; DecodeValue rehydrates it type-directed.
func EncodeValue(dt DataType, v any) (string, error) {
	if v == nil {
		return "", eris.Wrapf(ErrValidation, "encode %s: nil value", dt)
	}

	switch dt {
	case TypeBoolean:
		return encodeBool(v)
	case TypeNumber:
		return encodeNumber(v)
	case TypeList:
		return encodeList(v)
	case TypeText, TypeEnum, "":
		return encodeText(v)
	default:
		return "", eris.Wrapf(ErrValidation, "encode: unknown data type %q", dt)
	}
}

func encodeBool(v any) (string, error) {
	switch b := v.(type) {
	case bool:
		if b {
			return "1", nil
		}
		return "0", nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "yes", "y":
			return "1", nil
		case "0", "false", "no", "n":
			return "0", nil
		}
		return "", eris.Wrapf(ErrValidation, "encode boolean: unrecognized value %q", b)
	case float64:
		if b == 1 {
			return "1", nil
		}
		if b == 0 {
			return "0", nil
		}
		return "", eris.Wrapf(ErrValidation, "encode boolean: unrecognized number %v", b)
	default:
		return "", eris.Wrapf(ErrValidation, "encode boolean: unsupported type %T", v)
	}
}

func encodeNumber(v any) (string, error) {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 64), nil
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case json.Number:
		return n.String(), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return "", eris.Wrapf(ErrValidation, "encode number: %q is not numeric", n)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	default:
		return "", eris.Wrapf(ErrValidation, "encode number: unsupported type %T", v)
	}
}

func encodeList(v any) (string, error) {
	var items []string
	switch l := v.(type) {
	case []string:
		items = l
	case []any:
		for _, e := range l {
			items = append(items, fmt.Sprintf("%v", e))
		}
	case string:
		// A bare string for a list attribute is a one-element list.
		items = []string{l}
	default:
		return "", eris.Wrapf(ErrValidation, "encode list: unsupported type %T", v)
	}

	data, err := json.Marshal(items)
	if err != nil {
		return "", eris.Wrap(err, "encode list")
	}
	return string(data), nil
}

func encodeText(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", eris.Wrapf(ErrValidation, "encode text: unsupported type %T", v)
	}
}

// DecodeValue rehydrates a stored text encoding according to the declared
// type. A malformed stored value never fails the read: it degrades to the
// Text variant carrying the raw string.
func DecodeValue(dt DataType, s string) Value {
	switch dt {
	case TypeBoolean:
		switch s {
		case "1":
			return Value{Type: TypeBoolean, Bool: true}
		case "0":
			return Value{Type: TypeBoolean, Bool: false}
		}
	case TypeNumber:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Value{Type: TypeNumber, Number: f}
		}
	case TypeList:
		var items []string
		if err := json.Unmarshal([]byte(s), &items); err == nil {
			return Value{Type: TypeList, List: items}
		}
	case TypeEnum:
		return Value{Type: TypeEnum, Text: s}
	}
	return Value{Type: TypeText, Text: s}
}
