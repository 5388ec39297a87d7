// Package entities turns free text into appointment fields: canonical
// normalization, local pattern extraction and fill-only-empty merging.
package entities

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DateLayout = "02/01/2006"
	TimeLayout = "15:04"
)

var (
	dmyRe  = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2}|\d{4})$`)
	isoRe  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	timeRe = regexp.MustCompile(`(?i)^(\d{1,2})(?:[:h](\d{2}))?\s*(?:(a|p)\.?\s*m\.?)?$`)

	nameRegex = regexp.MustCompile(`^[\p{L}\s\-']+$`)
)

// NormalizeDate converts D/M/YY, D/M/YYYY (with / - or . separators) and
// YYYY-MM-DD into DD/MM/YYYY. Two-digit years are read as 20YY.
func NormalizeDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	var day, month, year string
	if m := dmyRe.FindStringSubmatch(s); m != nil {
		day, month, year = m[1], m[2], m[3]
	} else if m := isoRe.FindStringSubmatch(s); m != nil {
		year, month, day = m[1], m[2], m[3]
	} else {
		return "", false
	}
	if len(year) == 2 {
		year = "20" + year
	}

	d, _ := strconv.Atoi(day)
	mo, _ := strconv.Atoi(month)
	y, _ := strconv.Atoi(year)
	if mo < 1 || mo > 12 || d < 1 {
		return "", false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != mo {
		return "", false
	}
	return t.Format(DateLayout), true
}

// NormalizeTime converts "H:MM", "HH:MM", "3pm", "3:30 p.m." and similar
// into 24h HH:MM.
func NormalizeTime(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	meridiem := strings.ToLower(m[3])

	switch {
	case meridiem != "":
		if hour < 1 || hour > 12 {
			return "", false
		}
		hour %= 12
		if meridiem == "p" {
			hour += 12
		}
	case m[2] == "":
		// a bare number is not a time
		return "", false
	case hour > 23:
		return "", false
	}
	if minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// NormalizePhone keeps digits and a single leading plus. Numbers outside
// 10..15 digits are rejected.
func NormalizePhone(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	plus := strings.HasPrefix(s, "+")
	digits := filterDigits(s)
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	if plus {
		return "+" + digits, true
	}
	return digits, true
}

// NormalizeNationalID accepts exactly ten digits, ignoring separators.
func NormalizeNationalID(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	for _, r := range s {
		if !unicode.IsDigit(r) && r != ' ' && r != '-' && r != '.' {
			return "", false
		}
	}
	digits := filterDigits(s)
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// NormalizeName collapses whitespace and capitalizes each word.
func NormalizeName(raw string) (string, bool) {
	words := strings.Fields(raw)
	if len(words) == 0 {
		return "", false
	}
	joined := strings.Join(words, " ")
	if !nameRegex.MatchString(joined) {
		return "", false
	}
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " "), true
}

// IsValidName reports whether s looks like a full name: letters only, at least two words.
func IsValidName(s string) bool {
	s = strings.TrimSpace(s)
	return nameRegex.MatchString(s) && len(strings.Fields(s)) >= 2
}

func titleWord(w string) string {
	lower := strings.ToLower(w)
	r, size := utf8.DecodeRuneInString(lower)
	if r == utf8.RuneError {
		return lower
	}
	return string(unicode.ToUpper(r)) + lower[size:]
}

func filterDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseDate returns the calendar day of a normalized date in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, date, loc)
}
