package metadata

import (
	"math"
	"strconv"
)

type Kind int

const (
	Missing Kind = iota
	Number
	Text
)

// Value is a single normalized metadata cell.
type Value struct {
	Kind Kind
	Num  float64
	Text string
}

func MissingValue() Value {
	return Value{Kind: Missing}
}

func NumberValue(f float64) Value {
	return Value{Kind: Number, Num: f}
}

func TextValue(s string) Value {
	return Value{Kind: Text, Text: s}
}

func (v Value) IsMissing() bool {
	return v.Kind == Missing
}

// Status is the presence of a condition in one sample.
type Status int

const (
	StatusMissing Status = iota
	StatusNegative
	StatusPositive
)

// Status reads a disease cell. Only the numbers 1 and 0 are a known status.
func (v Value) Status() Status {
	if v.Kind == Number {
		switch v.Num {
		case 1:
			return StatusPositive
		case 0:
			return StatusNegative
		}
	}
	return StatusMissing
}

// Render01 formats a cell the way the 0/1 table is written: numbers always
// carry a fractional part and missing cells are empty.
func (v Value) Render01() string {
	switch v.Kind {
	case Number:
		return formatFloat(v.Num)
	case Text:
		return v.Text
	default:
		return ""
	}
}

// RenderTF formats a disease cell for the T/F table. Anything other than a
// known status is written exactly as in the 0/1 table.
func (v Value) RenderTF() string {
	switch v.Status() {
	case StatusPositive:
		return "T"
	case StatusNegative:
		return "F"
	default:
		return v.Render01()
	}
}

func formatFloat(f float64) string {
	abs := math.Abs(f)
	switch {
	case math.IsInf(f, 0) || math.IsNaN(f):
		return strconv.FormatFloat(f, 'g', -1, 64)
	case f == math.Trunc(f) && abs < 1e16:
		return strconv.FormatFloat(f, 'f', -1, 64) + ".0"
	case abs >= 1e-4 && abs < 1e16:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}
