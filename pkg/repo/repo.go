// Package repo defines the GitHub repository record shared by the remote
// fetcher, the local store and the read path.
package repo

// Repo is an immutable snapshot of a GitHub repository as returned by the
// search API. ID is the sole uniqueness key; a newer snapshot replaces every
// field of an older one.
type Repo struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	FullName    string  `json:"full_name" db:"full_name"`
	Description *string `json:"description" db:"description"`
	URL         string  `json:"html_url" db:"url"`
	Stars       int     `json:"stargazers_count" db:"stars"`
	Forks       int     `json:"forks_count" db:"forks"`
	Language    *string `json:"language" db:"language"`
}

// DescriptionText returns the description or an empty string.
func (r Repo) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// LanguageText returns the language or an empty string.
func (r Repo) LanguageText() string {
	if r.Language == nil {
		return ""
	}
	return *r.Language
}

// Less reports whether a sorts before b in search result order:
// stars descending, then name ascending, then ID ascending.
func Less(a, b Repo) bool {
	if a.Stars != b.Stars {
		return a.Stars > b.Stars
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}
