package domain

import "context"

// HashRequest identifies the directory whose hashes should be replicated.
type HashRequest struct {
	Domain    string
	User      string
	Password  string
	DCAddress string

	// WorkDir is a private scratch directory owned by the running audit.
	WorkDir string
}

// HashRetriever fetches the NT hashes of a domain. The result has one
// "user:rid:lmhash:nthash:::" line per account. Errors wrapping
// ErrToolUnavailable mean the retrieval backend is missing, anything else
// is an authentication or network failure.
type HashRetriever interface {
	RetrieveHashes(ctx context.Context, req HashRequest) (string, error)
}

// DirectoryQuery describes one search against the audited directory.
type DirectoryQuery struct {
	URL        string
	BaseDN     string
	CAFile     string
	BindDN     string
	Password   string
	Filter     string
	Attributes []string
}

// DirectoryEntries maps a DN to its attributes. Attribute names use the
// spelling of DirectoryQuery.Attributes.
type DirectoryEntries map[string]map[string][]string

// DirectoryQuerier runs directory searches.
type DirectoryQuerier interface {
	Query(ctx context.Context, q DirectoryQuery) (DirectoryEntries, error)
}

// MailSender delivers one message. Multiple recipients are hidden from
// each other.
type MailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}
