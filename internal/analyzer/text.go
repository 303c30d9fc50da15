package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// Undefined is printed for quantities without a value.
const Undefined = "Undefined"

// PlaceholderReport stands in for the text report when analysis failed.
const PlaceholderReport = "No report available: the analysis of this audit failed."

// Metric describes one quantity of a report.
type Metric struct {
	Key         string
	Title       string
	Description string
}

// Metrics lists the report quantities in presentation order.
var Metrics = []Metric{
	{"cracked", "Percentage of hashes cracked", "Share of hashes that were cracked. Lower is better."},
	{"total_hashes", "Total hash count", "Number of hashes that were subject of the audit."},
	{"cliques", "Clique size distribution", "Number of groups of at least two accounts sharing one password, per group size."},
	{"largest_clique", "Size of largest clique", "The largest clique consists of this many accounts."},
	{"cliquiness", "Cliquiness", "Prevalence of password reuse: 0% means all passwords are unique, 100% means every account uses the same one."},
	{"mean_pw_len", "Mean password length", "Mean length of the cracked passwords."},
	{"lengths", "Length distribution", "Number of cracked passwords per length."},
	{"char_classes", "Character class count distribution", "Number of cracked passwords using 0 to 4 of: upper, lower, digit, symbol."},
	{"top_basewords", "Top basewords", "Most frequent root words after removing decoration and leet speak."},
	{"top_patterns", "Top patterns", "Abc1..Abc1234: capital start, 1-4 trailing digits; Abcdef!: capital start, trailing symbol; abcdef: all lower case; 123456: all digits; ?: no known pattern."},
}

// TextReport renders a report as plain text for the administrator mail.
func TextReport(r *domain.Report) string {
	if r == nil || r.Incomplete {
		return PlaceholderReport
	}
	var b strings.Builder
	for _, m := range Metrics {
		switch m.Key {
		case "cracked":
			scalar(&b, m.Title, percent(&r.Cracked))
		case "total_hashes":
			scalar(&b, m.Title, fmt.Sprintf("%d", r.TotalHashes))
		case "cliques":
			histogram(&b, m.Title, r.Cliques)
		case "largest_clique":
			v := Undefined
			if r.LargestClique != nil {
				v = fmt.Sprintf("%d", *r.LargestClique)
			}
			scalar(&b, m.Title, v)
		case "cliquiness":
			scalar(&b, m.Title, percent(r.Cliquiness))
		case "mean_pw_len":
			v := Undefined
			if r.MeanPasswordLength != nil {
				v = fmt.Sprintf("%.02f", *r.MeanPasswordLength)
			}
			scalar(&b, m.Title, v)
		case "lengths":
			histogram(&b, m.Title, r.Lengths)
		case "char_classes":
			histogram(&b, m.Title, r.CharClasses)
		case "top_basewords":
			ranking(&b, m.Title, r.TopBasewords)
		case "top_patterns":
			ranking(&b, m.Title, r.TopPatterns)
		}
	}
	return b.String()
}

func percent(v *float64) string {
	if v == nil {
		return Undefined
	}
	return fmt.Sprintf("%.02f%%", *v*100)
}

func scalar(b *strings.Builder, title, value string) {
	fmt.Fprintf(b, "%s: %s\n", title, value)
}

func histogram(b *strings.Builder, title string, h domain.Histogram) {
	keys := make([]int, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fmt.Fprintf(b, "%s:\n", title)
	if len(keys) == 0 {
		fmt.Fprintf(b, "    %s\n", Undefined)
		return
	}
	for _, k := range keys {
		fmt.Fprintf(b, "    %d: %d\n", k, h[k])
	}
}

func ranking(b *strings.Builder, title string, r domain.Ranking) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(r) == 0 {
		fmt.Fprintf(b, "    %s\n", Undefined)
		return
	}
	for _, c := range r {
		fmt.Fprintf(b, "    %s: %d\n", c.Value, c.Count)
	}
}
