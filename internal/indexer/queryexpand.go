package indexer

import (
	"fmt"
	"strings"
)

// synonymFamilies are the fixed query-expansion groups: a query
// mentioning a family's key term gets that family's synonyms OR'd in
// alongside it.
var synonymFamilies = []struct {
	key      string
	synonyms []string
}{
	{"auth", []string{"authentication", "authorization", "login", "signin"}},
	{"security", []string{"secure", "permission", "access control"}},
	{"config", []string{"configuration", "settings", "appsettings"}},
	{"db", []string{"database", "sql", "datastore", "repository"}},
	{"http", []string{"rest", "api", "endpoint", "request"}},
}

// ExpandQuery rewrites text into `original (syn1 OR syn2 ...)` for
// every synonym family whose key term appears in text, in the families'
// declared order. Families are additive: a query matching more than one
// family appends one parenthesized group per match.
func ExpandQuery(text string) string {
	lower := strings.ToLower(text)

	var groups []string
	for _, fam := range synonymFamilies {
		if strings.Contains(lower, fam.key) {
			groups = append(groups, fmt.Sprintf("(%s)", strings.Join(fam.synonyms, " OR ")))
		}
	}
	if len(groups) == 0 {
		return text
	}
	return text + " " + strings.Join(groups, " ")
}
