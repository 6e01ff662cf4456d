// Package query turns list request parameters into a repository filter.
package query

import (
	"strings"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/repository"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// Params are the raw list parameters. Empty strings mean absent.
type Params struct {
	Status   string
	JobTitle string
	Search   string
}

// Build maps params to a filter. An unrecognised status never errors, it
// matches nothing.
func Build(p Params) repository.CandidateFilter {
	var f repository.CandidateFilter

	status := strings.TrimSpace(p.Status)
	switch {
	case status == "" || strings.EqualFold(status, StatusAll):
	case domain.Status(status).Valid():
		s := domain.Status(status)
		f.Status = &s
	default:
		f.MatchNone = true
	}

	f.JobTitle = strings.TrimSpace(p.JobTitle)
	f.Search = strings.TrimSpace(p.Search)
	return f
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern returns a lower-cased LIKE pattern matching s as a literal
// substring. Use it with ESCAPE '\'.
func LikePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
