package jsonval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Marshal encodes v compactly, keeping object keys in insertion order.
// HTML characters are not escaped.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, "", "", false, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent encodes v with the given indent. When sortKeys is set, object
// keys are written in lexicographic order.
func MarshalIndent(v Value, indent string, sortKeys bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, "\n", indent, sortKeys, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value, nl, indent string, sortKeys bool, depth int) error {
	switch t := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		if !json.Valid([]byte(t)) {
			return fmt.Errorf("jsonval: invalid number literal %q", string(t))
		}
		buf.WriteString(string(t))
	case String:
		writeString(buf, string(t))
	case Array:
		if len(t) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, nl, indent, depth+1)
			if err := encode(buf, el, nl, indent, sortKeys, depth+1); err != nil {
				return err
			}
		}
		newline(buf, nl, indent, depth)
		buf.WriteByte(']')
	case *Object:
		if t.Len() == 0 {
			buf.WriteString("{}")
			return nil
		}
		keys := t.Keys()
		if sortKeys {
			sort.Strings(keys)
		}
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, nl, indent, depth+1)
			writeString(buf, k)
			buf.WriteByte(':')
			if nl != "" {
				buf.WriteByte(' ')
			}
			el, _ := t.Get(k)
			if err := encode(buf, el, nl, indent, sortKeys, depth+1); err != nil {
				return err
			}
		}
		newline(buf, nl, indent, depth)
		buf.WriteByte('}')
	default:
		return fmt.Errorf("jsonval: unsupported value %T", v)
	}
	return nil
}

func newline(buf *bytes.Buffer, nl, indent string, depth int) {
	if nl == "" {
		return
	}
	buf.WriteString(nl)
	buf.WriteString(strings.Repeat(indent, depth))
}

func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
}

// FromAny converts values produced by encoding/json (or literals built in Go)
// into a Value. Map keys are inserted in sorted order.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return DeepCopy(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		b, _ := json.Marshal(t)
		return Number(b), nil
	case int:
		return Number(fmt.Sprint(t)), nil
	case int64:
		return Number(fmt.Sprint(t)), nil
	case []string:
		arr := make(Array, len(t))
		for i, s := range t {
			arr[i] = String(s)
		}
		return arr, nil
	case []any:
		arr := make(Array, len(t))
		for i, el := range t {
			v, err := FromAny(el)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return nil, err
			}
			obj.Set(k, v)
		}
		return obj, nil
	}
	return nil, fmt.Errorf("jsonval: cannot convert %T", x)
}
