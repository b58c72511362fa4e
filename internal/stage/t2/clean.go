package t2

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// CleanedFields is the normalized, typed shape of one job posting, ready to
// become an L1-out record. Grounded on the original's
// HandshakeCleanDataContainer.get_all.
type CleanedFields struct {
	About          *string
	ApplyBy        *time.Time
	ApplyType      *string
	Company        *string
	Documents      []string
	EmploymentType *string
	Industry       *string
	JobType        *string
	Location       *string
	LocationType   []string
	Position       *string
	PostedAt       *time.Time
	Wage           *[2]int
}

// Clean normalizes raw into CleanedFields. extractedOn is the "now" the raw
// page was scraped at, used as the basis for relative "posted N units ago"
// arithmetic.
func Clean(raw RawFields, extractedOn time.Time) (CleanedFields, error) {
	var c CleanedFields

	if raw.HasAbout {
		md, err := aboutToMarkdown(raw.AboutHTML)
		if err != nil {
			return CleanedFields{}, fmt.Errorf("t2: convert about to markdown: %w", err)
		}
		c.About = &md
	}
	if raw.HasApplyType {
		c.ApplyType = ptr(applyTypeOf(normalize(raw.ApplyType)))
	}
	if raw.HasCompany {
		c.Company = ptr(strings.TrimSpace(raw.Company))
	}
	c.Documents = documentsOf(raw.Documents)
	if raw.HasEmployment {
		if v, ok := employmentTypeOf(normalize(raw.EmploymentType)); ok {
			c.EmploymentType = &v
		}
	}
	if raw.HasIndustry {
		c.Industry = ptr(lowerStrip(raw.Industry))
	}
	if raw.HasJobType {
		c.JobType = ptr(normalize(raw.JobType))
	}
	if raw.HasLocation {
		norm := normalize(raw.Location)
		if v, ok := locationOf(norm); ok {
			c.Location = &v
		}
		c.LocationType = locationTypesOf(norm)
	}
	if raw.HasPosition {
		c.Position = ptr(lowerStrip(raw.Position))
	}
	if raw.HasTimes {
		times := replaceBullet(raw.Times)
		if posted, ok := postedAtOf(times, extractedOn); ok {
			c.PostedAt = &posted
		}
		if applyBy, ok := applyByOf(times); ok {
			c.ApplyBy = &applyBy
		}
	}
	if raw.HasWage {
		wage, ok, err := wageOf(raw.Wage)
		if err != nil {
			return CleanedFields{}, err
		}
		if ok {
			c.Wage = &wage
		}
	}
	return c, nil
}

func ptr[T any](v T) *T { return &v }

func lowerStrip(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// normalize is the Go port of _normalize. Go's RE2 engine has no lookbehind
// support, so the letter-spacing rule (splitting runs like "FullTime" into
// "Full Time") is a hand-rolled rune scan instead of the original's single
// regex; the dash/bullet substitutions use the real Unicode characters
// rather than the original's escaped-string literals, which never matched
// actual em-dash/bullet bytes.
func normalize(raw string) string {
	step1 := strings.ReplaceAll(raw, "–", "-")
	step2 := strings.ReplaceAll(step1, "∙", " ")
	step3 := insertCamelSpacing(step2)
	return strings.ToLower(strings.TrimSpace(step3))
}

func replaceBullet(raw string) string {
	return strings.ReplaceAll(raw, "∙", " ")
}

func insertCamelSpacing(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes)+4)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			twoUpperBefore := i >= 2 && unicode.IsUpper(runes[i-2]) && unicode.IsUpper(prev)
			var insertSpace bool
			switch {
			case twoUpperBefore:
				insertSpace = true
			case r == 'K':
				insertSpace = !unicode.IsDigit(prev) && !unicode.IsUpper(prev) && !unicode.IsSpace(prev)
			default:
				insertSpace = !unicode.IsUpper(prev) && !unicode.IsSpace(prev)
			}
			if insertSpace {
				out = append(out, ' ')
			}
		}
		out = append(out, r)
	}
	return string(out)
}

func applyTypeOf(normalized string) string {
	if normalized == "apply" {
		return "internal"
	}
	return "external"
}

func documentsOf(raw []string) []string {
	docs := []string{}
	prefixRe := regexp.MustCompile(`(?i)search your\s+(.*)`)
	for _, d := range raw {
		trimmed := strings.TrimSpace(d)
		m := prefixRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		name := strings.TrimSuffix(m[1], "s")
		docs = append(docs, name)
	}
	return docs
}

var jobTypePattern = regexp.MustCompile(`\w+-time`)

func employmentTypeOf(normalized string) (string, bool) {
	m := jobTypePattern.FindString(normalized)
	if m == "" {
		return "", false
	}
	return m, true
}

func locationOf(normalized string) (string, bool) {
	const marker = "based in "
	idx := strings.Index(normalized, marker)
	if idx < 0 {
		return "", false
	}
	return normalized[idx+len(marker):], true
}

var locationTypePattern = regexp.MustCompile(`onsite|remote|hybrid`)

func locationTypesOf(normalized string) []string {
	matches := locationTypePattern.FindAllString(normalized, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

var postedPattern = regexp.MustCompile(`(?i)posted\s+(\d+)\s+(\w+)`)

func postedAtOf(times string, extractedOn time.Time) (time.Time, bool) {
	m := postedPattern.FindStringSubmatch(times)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	unit := strings.TrimSuffix(strings.ToLower(m[2]), "s")
	switch unit {
	case "day":
		return extractedOn.AddDate(0, 0, -n), true
	case "week":
		return extractedOn.AddDate(0, 0, -7*n), true
	case "month":
		return extractedOn.AddDate(0, -n, 0), true
	case "year":
		return extractedOn.AddDate(-n, 0, 0), true
	default:
		return time.Time{}, false
	}
}

var applyByPattern = regexp.MustCompile(`(?i)apply by\s+(\w+)\s+(\d+),\s+(\d+)\s+at\s+(\d+:\d+)\s+(am|pm)`)

func applyByOf(times string) (time.Time, bool) {
	m := applyByPattern.FindStringSubmatch(times)
	if m == nil {
		return time.Time{}, false
	}
	monthTime, err := time.Parse("January", strings.Title(strings.ToLower(m[1])))
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, false
	}
	hm := strings.SplitN(m[4], ":", 2)
	if len(hm) != 2 {
		return time.Time{}, false
	}
	hour, err := strconv.Atoi(hm[0])
	if err != nil {
		return time.Time{}, false
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil {
		return time.Time{}, false
	}
	switch strings.ToLower(m[5]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return time.Date(year, monthTime.Month(), day, hour, minute, 0, 0, time.UTC), true
}

const (
	hoursPerYear  = 40 * 52
	weeksPerYear  = 52
	monthsPerYear = 12
)

var (
	slashUnitPattern = regexp.MustCompile(`/(\w+)`)
	perUnitPattern   = regexp.MustCompile(`per (\w+)`)
	digitsPattern    = regexp.MustCompile(`\d+`)
	thousandsMarker  = regexp.MustCompile(`\dk`)
)

// wageOf ports get_wage/_convert_to_annual_wage. An unrecognized unit
// returns ok=false, nil rather than the original's unhandled ValueError, so
// a malformed wage string drops only the wage field instead of the whole
// posting.
func wageOf(raw string) ([2]int, bool, error) {
	clean := normalize(raw)
	unit := wageUnitOf(clean)
	switch unit {
	case "unpaid":
		return [2]int{0, 0}, true, nil
	case "paid", "":
		return [2]int{}, false, nil
	}
	digits := digitsPattern.FindAllString(clean, -1)
	if len(digits) == 0 {
		return [2]int{}, false, nil
	}
	start, err := strconv.Atoi(digits[0])
	if err != nil {
		return [2]int{}, false, nil
	}
	end := start
	if len(digits) > 1 {
		if v, err := strconv.Atoi(digits[1]); err == nil {
			end = v
		}
	}
	inThousands := thousandsMarker.MatchString(clean)
	return annualWage(unit, inThousands, start, end)
}

func wageUnitOf(clean string) string {
	if m := slashUnitPattern.FindStringSubmatch(clean); m != nil {
		return m[1]
	}
	if m := perUnitPattern.FindStringSubmatch(clean); m != nil {
		return m[1]
	}
	if strings.Contains(clean, "unpaid") {
		return "unpaid"
	}
	if strings.Contains(clean, "paid") {
		return "paid"
	}
	return ""
}

func annualWage(unit string, inThousands bool, start, end int) ([2]int, bool, error) {
	k := 1
	if inThousands {
		k = 1000
	}
	annual := func(perYear, k int) [2]int {
		return [2]int{start * perYear * k, end * perYear * k}
	}
	switch unit {
	case "hr", "hour":
		if inThousands {
			return annual(1, k), true, nil
		}
		return annual(hoursPerYear, 1), true, nil
	case "wk", "week":
		return annual(weeksPerYear, k), true, nil
	case "mo", "month":
		return annual(monthsPerYear, k), true, nil
	case "yr", "year":
		return annual(1, k), true, nil
	default:
		return [2]int{}, false, nil
	}
}
