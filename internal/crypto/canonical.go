package crypto

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize renders v as canonical JSON bytes: object keys sorted
// lexicographically, strings NFC-normalized, null members stripped from
// objects, and raw floating-point values rejected outright. Monetary
// amounts must arrive as fixed-precision strings. Two structurally equal
// values always canonicalize to the same bytes, which is what makes
// checksums over audit records reproducible across runs.
//
// Any change to this encoding is a breaking change to historical checksum
// compatibility and requires a new rule version.
func Canonicalize(v any) ([]byte, error) {
	var enc encoder
	if err := enc.value(v); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) value(v any) error {
	if v == nil {
		e.buf.WriteString("null")
		return nil
	}

	if n, ok := v.(json.Number); ok {
		return e.number(n)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return e.str(rv.String())
	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return ErrFloatNotAllowed
	case reflect.Map:
		return e.object(rv)
	case reflect.Slice, reflect.Array:
		return e.array(rv)
	case reflect.Invalid:
		e.buf.WriteString("null")
		return nil
	default:
		return ErrUnsupportedType
	}
}

func (e *encoder) str(s string) error {
	encoded, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return err
	}
	e.buf.Write(encoded)
	return nil
}

// number admits integers only; a float that sneaks in through json.Number
// is rejected the same way a native float is.
func (e *encoder) number(n json.Number) error {
	raw := n.String()
	for _, r := range raw {
		if r == '.' || r == 'e' || r == 'E' {
			return ErrFloatNotAllowed
		}
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ErrFloatNotAllowed
	}
	e.buf.WriteString(strconv.FormatInt(parsed, 10))
	return nil
}

func (e *encoder) object(rv reflect.Value) error {
	if rv.Type().Key().Kind() != reflect.String {
		return ErrNonStringMapKey
	}

	type member struct {
		key   string
		value any
	}

	members := make([]member, 0, rv.Len())
	seen := make(map[string]struct{}, rv.Len())

	for _, key := range rv.MapKeys() {
		normalized := norm.NFC.String(key.String())
		if _, dup := seen[normalized]; dup {
			return ErrKeyCollision
		}
		seen[normalized] = struct{}{}

		val := rv.MapIndex(key).Interface()
		if isNil(val) {
			continue
		}
		members = append(members, member{key: normalized, value: val})
	}

	sort.Slice(members, func(i, j int) bool { return members[i].key < members[j].key })

	e.buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.str(m.key); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.value(m.value); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) array(rv reflect.Value) error {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		e.buf.WriteString("null")
		return nil
	}

	e.buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.value(rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
