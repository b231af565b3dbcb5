package money

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

type numberStyle struct {
	group   string
	decimal string
	lakh    bool
}

var (
	styleDefault = numberStyle{group: ",", decimal: "."}
	styleIndian  = numberStyle{group: ",", decimal: ".", lakh: true}
	styleComma   = numberStyle{group: ".", decimal: ","}
)

// commaDecimalLanguages use "." for grouping and "," for the decimal mark.
var commaDecimalLanguages = map[string]bool{
	"id": true,
	"de": true,
	"nl": true,
	"es": true,
	"it": true,
	"pt": true,
	"tr": true,
}

// Format renders the amount for display using the grouping rules of the
// given BCP-47 locale. It is only meant for presentation boundaries.
func Format(a Money, locale string) string {
	style := styleFor(locale)
	v := a.minor
	neg := v < 0
	if neg {
		v = -v
	}
	whole := strconv.FormatInt(v/MinorUnits, 10)
	frac := v % MinorUnits

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(group(whole, style))
	b.WriteString(style.decimal)
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}

func styleFor(locale string) numberStyle {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return styleDefault
	}
	base, _ := tag.Base()
	region, _ := tag.Region()
	if region.String() == "IN" {
		return styleIndian
	}
	if commaDecimalLanguages[base.String()] {
		return styleComma
	}
	return styleDefault
}

func group(digits string, style numberStyle) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	size := 3
	if style.lakh {
		size = 2
	}
	var parts []string
	for len(head) > size {
		parts = append([]string{head[len(head)-size:]}, parts...)
		head = head[:len(head)-size]
	}
	parts = append([]string{head}, parts...)
	return strings.Join(parts, style.group) + style.group + tail
}
