// Package t2 implements the T2 detail-transformer stage: parse a raw job
// page into structured fields, clean them, and publish the enriched record.
package t2

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RawFields is everything T2's anchored DOM traversal can recover from one
// job detail page. Every field is a total getter over the page: a missing
// anchor yields a zero value and ok=false rather than a panic, the Go
// analogue of the original's @return_none_on_attribute_error decorator.
type RawFields struct {
	Wage           string
	HasWage        bool
	Location       string
	HasLocation    bool
	EmploymentType string
	HasEmployment  bool
	JobType        string
	HasJobType     bool
	AboutHTML      string
	HasAbout       bool
	ApplyType      string
	HasApplyType   bool
	Position       string
	HasPosition    bool
	Times          string
	HasTimes       bool
	Company        string
	HasCompany     bool
	Industry       string
	HasIndustry    bool
	Documents      []string
}

// SVG path-d prefixes the original anchors traversal on: the money,
// location and job-type icons each precede the field they label.
var (
	moneySVGPrefix    = "M2.5 8C2.22386"
	locationSVGPrefix = "M12 2C15.866"
	jobSVGPrefix      = "M11.5527 2.72314"
)

var applyAriaLabel = regexp.MustCompile(`Apply`)

// ParseRaw extracts RawFields from one job detail page's HTML.
func ParseRaw(html string) (RawFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return RawFields{}, err
	}
	var f RawFields
	f.Wage, f.HasWage = wageOrLocation(doc, moneySVGPrefix)
	f.Location, f.HasLocation = wageOrLocation(doc, locationSVGPrefix)
	f.EmploymentType, f.HasEmployment = jobPanelField(doc, 1)
	f.JobType, f.HasJobType = jobPanelField(doc, 0)
	f.AboutHTML, f.HasAbout = about(doc)
	f.ApplyType, f.HasApplyType = applyType(doc)

	posTag := positionTag(doc)
	if posTag.Length() > 0 {
		f.Position, f.HasPosition = strings.TrimSpace(posTag.Text()), true
	}
	f.Times, f.HasTimes = times(posTag)
	f.Company, f.HasCompany = companyOrIndustry(posTag, 0)
	f.Industry, f.HasIndustry = companyOrIndustry(posTag, 1)
	f.Documents = documents(doc)
	return f, nil
}

// wageOrLocation orients around an SVG icon whose path-d attribute starts
// with prefix, then reads the text of the first div inside its next
// sibling div: the money icon labels wage, the location icon labels
// location.
func wageOrLocation(doc *goquery.Document, prefix string) (string, bool) {
	path := findSVGPath(doc, prefix)
	if path.Length() == 0 {
		return "", false
	}
	sib := nextSiblingTag(path.Parent(), "div")
	if sib.Length() == 0 {
		return "", false
	}
	inner := sib.Find("div").First()
	if inner.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(inner.Text()), true
}

// jobPanelField orients around the job-type SVG icon; its next sibling div
// holds two child divs, job_type first then employment_type.
func jobPanelField(doc *goquery.Document, index int) (string, bool) {
	path := findSVGPath(doc, jobSVGPrefix)
	if path.Length() == 0 {
		return "", false
	}
	sib := nextSiblingTag(path.Parent(), "div")
	if sib.Length() == 0 {
		return "", false
	}
	divs := sib.Find("div")
	if divs.Length() <= index {
		return "", false
	}
	return strings.TrimSpace(divs.Eq(index).Text()), true
}

func findSVGPath(doc *goquery.Document, prefix string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("path").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		d, ok := s.Attr("d")
		if ok && strings.HasPrefix(d, prefix) {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return doc.Find("nonexistent-sentinel")
	}
	return found
}

// about orients around the "At a glance" heading to find the about section,
// returning its inner HTML (converted to Markdown downstream).
func about(doc *goquery.Document) (string, bool) {
	var heading *goquery.Selection
	doc.Find("h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == "At a glance" {
			heading = s
			return false
		}
		return true
	})
	if heading == nil {
		return "", false
	}
	container := heading.Parent().Parent()
	sib := nextSiblingTag(container, "div")
	if sib.Length() == 0 {
		return "", false
	}
	inner := sib.Find("div").First().Find("div").First()
	if inner.Length() == 0 {
		return "", false
	}
	html, err := inner.Html()
	if err != nil {
		return "", false
	}
	return html, true
}

// applyType reads the text of the Apply / Apply externally button.
func applyType(doc *goquery.Document) (string, bool) {
	var button *goquery.Selection
	doc.Find("button[aria-label]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label, _ := s.Attr("aria-label")
		if applyAriaLabel.MatchString(label) {
			button = s
			return false
		}
		return true
	})
	if button == nil {
		return "", false
	}
	return strings.TrimSpace(button.Text()), true
}

// positionTag selects the h1 that names the job, the anchor every other
// panel-relative field is navigated from.
func positionTag(doc *goquery.Document) *goquery.Selection {
	return doc.Find(`a[href^="/jobs/"][href*="?searchId="] h1`).First()
}

func times(posTag *goquery.Selection) (string, bool) {
	if posTag.Length() == 0 {
		return "", false
	}
	sib := nextSiblingTag(posTag.Parent(), "div")
	if sib.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sib.Text()), true
}

// companyOrIndustry orients around the position tag's previous sibling
// panel, which holds two anchors: company first then industry.
func companyOrIndustry(posTag *goquery.Selection, index int) (string, bool) {
	if posTag.Length() == 0 {
		return "", false
	}
	sib := prevSiblingTag(posTag.Parent(), "div")
	if sib.Length() == 0 {
		return "", false
	}
	anchors := sib.Find("div").First().Find("a")
	if anchors.Length() <= index {
		return "", false
	}
	inner := anchors.Eq(index).Find("div").First()
	if inner.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(inner.Text()), true
}

// documents collects the placeholder attribute of every input whose
// placeholder contains "search your" case-insensitively.
func documents(doc *goquery.Document) []string {
	docs := []string{}
	doc.Find("input[placeholder]").Each(func(_ int, s *goquery.Selection) {
		placeholder, _ := s.Attr("placeholder")
		if strings.Contains(strings.ToLower(placeholder), "search your") {
			docs = append(docs, placeholder)
		}
	})
	return docs
}

func nextSiblingTag(s *goquery.Selection, tag string) *goquery.Selection {
	cur := s
	for {
		cur = cur.Next()
		if cur.Length() == 0 || goquery.NodeName(cur) == tag {
			return cur
		}
	}
}

func prevSiblingTag(s *goquery.Selection, tag string) *goquery.Selection {
	cur := s
	for {
		cur = cur.Prev()
		if cur.Length() == 0 || goquery.NodeName(cur) == tag {
			return cur
		}
	}
}
