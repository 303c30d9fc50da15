// Package analyzer turns recovered passwords and the audited hash set into
// weakness and reuse statistics.
package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// TopN bounds the basewords and patterns rankings.
const TopN = 10

// CreateReport builds a report from the recovered passwords (cracked
// accounts only) and every hash of the audited population.
func CreateReport(passwords, hashes []string) (*domain.Report, error) {
	if len(passwords) > len(hashes) {
		return nil, fmt.Errorf("analyzer: %d passwords for %d hashes", len(passwords), len(hashes))
	}

	r := &domain.Report{
		TotalHashes: len(hashes),
		Lengths:     domain.Histogram{},
		Cliques:     domain.Histogram{},
		CharClasses: domain.Histogram{},
	}

	if len(hashes) > 0 {
		r.Cracked = float64(len(passwords)) / float64(len(hashes))
	}

	if len(passwords) > 0 {
		total := 0
		for _, p := range passwords {
			n := utf8.RuneCountInString(p)
			total += n
			r.Lengths[n]++
		}
		mean := float64(total) / float64(len(passwords))
		r.MeanPasswordLength = &mean
	}

	groups := make(map[string]int, len(hashes))
	largest := 0
	for _, h := range hashes {
		groups[h]++
		if groups[h] > largest {
			largest = groups[h]
		}
	}
	if len(hashes) > 0 {
		r.LargestClique = &largest
	}
	if len(hashes) > 1 {
		c := 1 - float64(len(groups)-1)/float64(len(hashes)-1)
		r.Cliquiness = &c
	}
	for _, size := range groups {
		if size > 1 {
			r.Cliques[size]++
		}
	}

	for _, p := range passwords {
		r.CharClasses[CharClassCount(p)]++
	}

	r.TopBasewords = TopBasewords(passwords)
	r.TopPatterns = TopPatterns(passwords)
	return r, nil
}

// Placeholder is the report kept when the analysis of total hashes failed.
func Placeholder(total int) *domain.Report {
	return &domain.Report{
		TotalHashes: total,
		Lengths:     domain.Histogram{},
		Cliques:     domain.Histogram{},
		CharClasses: domain.Histogram{},
		Incomplete:  true,
	}
}

// CharClassCount returns how many of uppercase, lowercase, digit and
// symbol occur in p.
func CharClassCount(p string) int {
	var upper, lower, digit, symbol bool
	for _, c := range p {
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	n := 0
	for _, b := range []bool{upper, lower, digit, symbol} {
		if b {
			n++
		}
	}
	return n
}

// counter tallies values and ranks them by count, ties in first-seen order.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter { return &counter{counts: make(map[string]int)} }

func (c *counter) add(v string) {
	if _, ok := c.counts[v]; !ok {
		c.order = append(c.order, v)
	}
	c.counts[v]++
}

func (c *counter) top(n int, keep func(value string, count int) bool) domain.Ranking {
	ranking := make(domain.Ranking, 0, len(c.order))
	for _, v := range c.order {
		if keep != nil && !keep(v, c.counts[v]) {
			continue
		}
		ranking = append(ranking, domain.Count{Value: v, Count: c.counts[v]})
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Count > ranking[j].Count })
	if len(ranking) > n {
		ranking = ranking[:n]
	}
	return ranking
}

var (
	decorationTrailing = regexp.MustCompile(`[0-9!@#$%^&*()_+~}|"? ><,./\\'\[\]-]*$`)
	decorationLeading  = regexp.MustCompile(`^[0-9!@#$%^&*()_+~}|" ?><,./\\'\[\]-]*`)
	remainingSymbols   = regexp.MustCompile(`[!@#$%^&*()_+~}|"?><,./\\'\[\]-]`)
	anyDigit           = regexp.MustCompile(`[0-9]`)

	deleet = strings.NewReplacer(
		"!", "i",
		"1", "i",
		"0", "o",
		"3", "e",
		"@", "a",
		"+", "t",
		"$", "s",
	)
)

// Baseword extracts the de-obfuscated root word of a password, or "" when
// nothing word-like remains.
func Baseword(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ToLower(p)
	p = decorationTrailing.ReplaceAllString(p, "")
	p = decorationLeading.ReplaceAllString(p, "")
	p = deleet.Replace(p)
	p = remainingSymbols.ReplaceAllString(p, "")

	fields := strings.Fields(p)
	if len(fields) == 0 {
		return ""
	}
	longest, size := fields[0], utf8.RuneCountInString(fields[0])
	for _, f := range fields[1:] {
		if n := utf8.RuneCountInString(f); n >= size {
			longest, size = f, n
		}
	}
	if anyDigit.MatchString(longest) {
		return ""
	}
	return longest
}

// TopBasewords ranks basewords seen at least twice and at least three
// characters long.
func TopBasewords(passwords []string) domain.Ranking {
	c := newCounter()
	for _, p := range passwords {
		if w := Baseword(p); w != "" {
			c.add(w)
		}
	}
	return c.top(TopN, func(w string, n int) bool {
		return n > 1 && utf8.RuneCountInString(w) >= 3
	})
}

// UnknownPattern labels passwords no rule matched.
const UnknownPattern = "?"

type patternRule struct {
	name string
	re   *regexp.Regexp
}

// patternRules are checked in order; the first match wins.
var patternRules = []patternRule{
	{"Abc1", regexp.MustCompile(`^[A-Z].*[^0-9][0-9]$`)},
	{"Abc12", regexp.MustCompile(`^[A-Z].*[^0-9][0-9]{2}$`)},
	{"Abc123", regexp.MustCompile(`^[A-Z].*[^0-9][0-9]{3}$`)},
	{"Abc1234", regexp.MustCompile(`^[A-Z].*[^0-9][0-9]{4}$`)},
	{"Abcdef!", regexp.MustCompile(`^[A-Z].*[!.?,_/\\@"#$%^&*()+}{|-]$`)},
	{"abcdef", regexp.MustCompile(`^[a-z]*$`)},
	{"123456", regexp.MustCompile(`^[0-9]*$`)},
}

// Pattern returns the structural pattern of p.
func Pattern(p string) string {
	for _, rule := range patternRules {
		if rule.re.MatchString(p) {
			return rule.name
		}
	}
	return UnknownPattern
}

// TopPatterns ranks structural patterns.
func TopPatterns(passwords []string) domain.Ranking {
	c := newCounter()
	for _, p := range passwords {
		c.add(Pattern(p))
	}
	return c.top(TopN, nil)
}
