// Package parser extracts inline metadata from note content written in
// quick-capture style ("- fix the login bug #bug !2026-09-12").
package parser

import (
	"regexp"
	"strings"
	"time"
)

// Result holds the cleaned note body and the metadata extracted from it.
type Result struct {
	Body string
	Tags []string
	Date *time.Time
}

var (
	tagRe  = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_-]+)`)
	dateRe = regexp.MustCompile(`(^|\s)!(\d{4}-\d{2}-\d{2})`)
)

// Parse strips a leading list marker, extracts #tags and a !YYYY-MM-DD date,
// and returns the remaining text as the note body.
func Parse(content string) Result {
	body := strings.TrimSpace(content)
	for _, marker := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(body, marker) {
			body = strings.TrimSpace(strings.TrimPrefix(body, marker))
			break
		}
	}

	var res Result
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		res.Tags = append(res.Tags, m[2])
	}
	body = strings.TrimSpace(tagRe.ReplaceAllString(body, "$1"))

	if m := dateRe.FindStringSubmatch(body); m != nil {
		if d, err := time.Parse("2006-01-02", m[2]); err == nil {
			res.Date = &d
			body = strings.TrimSpace(dateRe.ReplaceAllString(body, "$1"))
		}
	}

	res.Body = strings.Join(strings.Fields(body), " ")
	return res
}
