package transcripts

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	qFirst    = regexp.MustCompile(`^Q([1-4])[\s\-_/]*FY[\s\-_/]*(\d{2}|\d{4})$`)
	fyFirst   = regexp.MustCompile(`^FY[\s\-_/]*(\d{2}|\d{4})[\s\-_/]*Q([1-4])$`)
	yearFirst = regexp.MustCompile(`^(\d{4})[\s\-_/]*Q([1-4])$`)
	yearLast  = regexp.MustCompile(`^Q([1-4])[\s\-_/]*(\d{4})$`)
)

// PeriodKey returns a sortable key for a fiscal quarter id such as Q2FY26,
// FY26Q2, 2025-Q3 or Q3 2025. ok is false for unrecognized formats.
func PeriodKey(period string) (key int, ok bool) {
	p := strings.ToUpper(strings.TrimSpace(period))
	var yearStr, quarterStr string
	switch {
	case qFirst.MatchString(p):
		m := qFirst.FindStringSubmatch(p)
		quarterStr, yearStr = m[1], m[2]
	case fyFirst.MatchString(p):
		m := fyFirst.FindStringSubmatch(p)
		yearStr, quarterStr = m[1], m[2]
	case yearFirst.MatchString(p):
		m := yearFirst.FindStringSubmatch(p)
		yearStr, quarterStr = m[1], m[2]
	case yearLast.MatchString(p):
		m := yearLast.FindStringSubmatch(p)
		quarterStr, yearStr = m[1], m[2]
	default:
		return 0, false
	}
	year, _ := strconv.Atoi(yearStr)
	if year < 100 {
		year += 2000
	}
	quarter, _ := strconv.Atoi(quarterStr)
	return year*10 + quarter, true
}

// ComparePeriods orders periods chronologically. Unrecognized periods sort as
// older than any recognized one and fall back to lexical order among themselves.
func ComparePeriods(a, b string) int {
	ka, okA := PeriodKey(a)
	kb, okB := PeriodKey(b)
	switch {
	case okA && okB:
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
	case okA:
		return 1
	case okB:
		return -1
	}
	return strings.Compare(a, b)
}

// SortNewestFirst orders transcripts by period descending, then by arrival.
func SortNewestFirst(list []Transcript) {
	sort.SliceStable(list, func(i, j int) bool {
		if c := ComparePeriods(list[i].Period, list[j].Period); c != 0 {
			return c > 0
		}
		return list[i].ReceivedAt.After(list[j].ReceivedAt)
	})
}
