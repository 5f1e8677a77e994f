// Package calendar provides month and weekday names for destination
// directories.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"

	"photosort/internal/sorter"
)

// Namer supplies calendar names. It satisfies sorter.CalendarNamer.
type Namer interface {
	Month(m time.Month) string
	Weekday(d time.Weekday) string
}

var (
	_ sorter.CalendarNamer = english{}
	_ sorter.CalendarNamer = (*localized)(nil)
)

type english struct{}

func (english) Month(m time.Month) string     { return m.String() }
func (english) Weekday(d time.Weekday) string { return d.String() }

// English uses Go's month and weekday names: "January", "Sunday".
var English Namer = english{}

// localized names months and weekdays through monday's locale tables.
type localized struct {
	months   [12]string
	weekdays [7]string
}

func (l *localized) Month(m time.Month) string {
	if m < time.January || m > time.December {
		return m.String()
	}
	return l.months[m-1]
}

func (l *localized) Weekday(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return d.String()
	}
	return l.weekdays[d]
}

// ForLocale returns a Namer for a BCP 47 or POSIX locale tag such as "fr",
// "fr-FR", "fr_FR" or "fr_FR.UTF-8". An empty tag, "C", "POSIX" and any
// English tag return English.
func ForLocale(tag string) (Namer, error) {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, ".@"); i >= 0 {
		tag = tag[:i]
	}
	switch strings.ToUpper(tag) {
	case "", "C", "POSIX":
		return English, nil
	}

	t, err := language.Parse(strings.ReplaceAll(tag, "_", "-"))
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", tag, err)
	}

	base, _ := t.Base()
	if base.String() == "en" {
		return English, nil
	}

	loc, err := mondayLocale(t)
	if err != nil {
		return nil, err
	}

	l := &localized{}
	for m := time.January; m <= time.December; m++ {
		l.months[m-1] = monday.Format(time.Date(2000, m, 1, 0, 0, 0, 0, time.UTC), "January", loc)
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		// 2000-01-02 was a Sunday.
		l.weekdays[d] = monday.Format(time.Date(2000, 1, 2+int(d), 0, 0, 0, 0, time.UTC), "Monday", loc)
	}
	return l, nil
}

// mondayLocale maps a language tag to a supported monday locale, using the
// tag's region or the most likely one when it has none.
func mondayLocale(t language.Tag) (monday.Locale, error) {
	base, _ := t.Base()
	region, _ := t.Region()
	want := monday.Locale(base.String() + "_" + region.String())

	supported := monday.ListLocales()
	for _, l := range supported {
		if l == want {
			return l, nil
		}
	}
	// Fall back to any region of the same language.
	prefix := base.String() + "_"
	for _, l := range supported {
		if strings.HasPrefix(string(l), prefix) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported locale %q", t)
}
