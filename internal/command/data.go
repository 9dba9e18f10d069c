package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Limits applied to response objects. MaxEntries bounds dictionaries only;
// arrays grow with what they enumerate, such as the tracked peers.
const (
	MaxNameLen   = 64
	MaxEntries   = 4096
	maxStringLen = 4096
)

type dataKind int

const (
	kindNone dataKind = iota
	kindDict
	kindArray
	kindString
)

var (
	errWrongKind  = errors.New("response container has a different kind")
	errTooLarge   = fmt.Errorf("response dictionary exceeds %d entries", MaxEntries)
	errBadName    = errors.New("invalid dictionary key")
	errLongString = fmt.Errorf("string exceeds %d bytes", maxStringLen)
)

type value struct {
	str   string
	num   string // pre-formatted integer
	isNum bool
}

type dictEntry struct {
	name string
	val  value
}

// Data is a command response: a dictionary, an array or a single string.
// Entries keep insertion order when encoded.
type Data struct {
	kind  dataKind
	dict  []dictEntry
	array []value
	str   string
}

// StartDict turns d into an empty dictionary.
func (d *Data) StartDict() {
	*d = Data{kind: kindDict}
}

// StartArray turns d into an empty array.
func (d *Data) StartArray() {
	*d = Data{kind: kindArray}
}

// SetString turns d into a single string value.
func (d *Data) SetString(s string) error {
	if len(s) > maxStringLen {
		return errLongString
	}
	*d = Data{kind: kindString, str: s}
	return nil
}

// Len returns the number of dictionary or array entries.
func (d *Data) Len() int {
	switch d.kind {
	case kindDict:
		return len(d.dict)
	case kindArray:
		return len(d.array)
	}
	return 0
}

func validName(name string) bool {
	if name == "" || len(name) > MaxNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c == '"' || c == '\\' || c == 0x7f {
			return false
		}
	}
	return true
}

func (d *Data) addDict(name string, v value) error {
	if d.kind != kindDict {
		return errWrongKind
	}
	if !validName(name) {
		return fmt.Errorf("%w: %q", errBadName, name)
	}
	if len(d.dict) >= MaxEntries {
		return errTooLarge
	}
	d.dict = append(d.dict, dictEntry{name: name, val: v})
	return nil
}

// AddDictInt adds a signed integer entry.
func (d *Data) AddDictInt(name string, v int64) error {
	return d.addDict(name, value{num: strconv.FormatInt(v, 10), isNum: true})
}

// AddDictUint adds an unsigned integer entry.
func (d *Data) AddDictUint(name string, v uint64) error {
	return d.addDict(name, value{num: strconv.FormatUint(v, 10), isNum: true})
}

// AddDictString adds a string entry.
func (d *Data) AddDictString(name, v string) error {
	if len(v) > maxStringLen {
		return errLongString
	}
	return d.addDict(name, value{str: v})
}

func (d *Data) addArray(v value) error {
	if d.kind != kindArray {
		return errWrongKind
	}
	d.array = append(d.array, v)
	return nil
}

// AddArrayString appends a string element.
func (d *Data) AddArrayString(v string) error {
	if len(v) > maxStringLen {
		return errLongString
	}
	return d.addArray(value{str: v})
}

// AddArrayUint appends an unsigned integer element.
func (d *Data) AddArrayUint(v uint64) error {
	return d.addArray(value{num: strconv.FormatUint(v, 10), isNum: true})
}

func (v value) appendJSON(buf *bytes.Buffer) {
	if v.isNum {
		buf.WriteString(v.num)
		return
	}
	b, _ := json.Marshal(v.str)
	buf.Write(b)
}

// MarshalJSON encodes d. An unset Data encodes as null.
func (d *Data) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	d.appendJSON(&buf)
	return buf.Bytes(), nil
}

func (d *Data) appendJSON(buf *bytes.Buffer) {
	switch d.kind {
	case kindDict:
		buf.WriteByte('{')
		for i, e := range d.dict {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, _ := json.Marshal(e.name)
			buf.Write(name)
			buf.WriteByte(':')
			e.val.appendJSON(buf)
		}
		buf.WriteByte('}')
	case kindArray:
		buf.WriteByte('[')
		for i, v := range d.array {
			if i > 0 {
				buf.WriteByte(',')
			}
			v.appendJSON(buf)
		}
		buf.WriteByte(']')
	case kindString:
		value{str: d.str}.appendJSON(buf)
	default:
		buf.WriteString("null")
	}
}
