package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// RepoRef identifies a GitHub repository as owner/name
type RepoRef struct {
	Owner string
	Name  string
}

// ParseRepoRef parses "owner/repo"
func ParseRepoRef(s string) (RepoRef, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, goerr.New("repository must be in owner/repo format", goerr.V("repo", s))
	}
	return RepoRef{Owner: owner, Name: name}, nil
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}
