package fetch

import (
	"fmt"
	"time"
)

// termStarts maps each parliamentary term to its inclusive start date.
var termStarts = []struct {
	term  int
	start string
}{
	{1, "1979-07-17"},
	{2, "1984-07-24"},
	{3, "1989-07-25"},
	{4, "1994-07-19"},
	{5, "1999-07-20"},
	{6, "2004-07-20"},
	{7, "2009-07-14"},
	{8, "2014-07-01"},
	{9, "2019-07-02"},
	{10, "2024-07-16"},
}

// TermForDate returns the parliamentary term covering the given date.
// Dates before the first direct election are an error.
func TermForDate(date time.Time) (int, error) {
	term := 0
	for _, t := range termStarts {
		start, err := time.Parse("2006-01-02", t.start)
		if err != nil {
			return 0, fmt.Errorf("bad term table entry %q: %w", t.start, err)
		}
		if date.Before(start) {
			break
		}
		term = t.term
	}
	if term == 0 {
		return 0, fmt.Errorf("date %s precedes the first parliamentary term", date.Format("2006-01-02"))
	}
	return term, nil
}

// VerbatimURL returns the CRE document URL for a sitting date.
func VerbatimURL(baseURL string, date time.Time) (string, error) {
	term, err := TermForDate(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/doceo/document/CRE-%d-%s_EN.html", baseURL, term, date.Format("2006-01-02")), nil
}

// TOCURL returns the table-of-contents companion URL for a sitting date.
func TOCURL(baseURL string, date time.Time) (string, error) {
	term, err := TermForDate(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/doceo/document/CRE-%d-%s-TOC_EN.html", baseURL, term, date.Format("2006-01-02")), nil
}
