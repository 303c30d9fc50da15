package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle stage of an audit. The numeric values are
// persisted and must not be reordered.
type State int

const (
	StateScheduled State = iota + 1
	StateReplicating
	StateCracking
	StateAnalyzing
	StateSendingEmails
	StateAborted
	StateFailed
	StateFinished
)

var stateNames = map[State]string{
	StateScheduled:     "scheduled",
	StateReplicating:   "replicating",
	StateCracking:      "cracking",
	StateAnalyzing:     "analyzing",
	StateSendingEmails: "sending_emails",
	StateAborted:       "aborted",
	StateFailed:        "failed",
	StateFinished:      "finished",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateAborted
}

// Active reports whether s holds the cracking host.
func (s State) Active() bool {
	return s >= StateReplicating && s <= StateSendingEmails
}

// Frequency controls whether and when a finished audit is re-created.
type Frequency int

const (
	FrequencyJustOnce Frequency = iota + 1
	FrequencyDaily
	FrequencyWeekly
	FrequencyMonthly
	FrequencyQuarterly
	FrequencyYearly
)

var frequencyNames = map[Frequency]string{
	FrequencyJustOnce:  "once",
	FrequencyDaily:     "daily",
	FrequencyWeekly:    "weekly",
	FrequencyMonthly:   "monthly",
	FrequencyQuarterly: "quarterly",
	FrequencyYearly:    "yearly",
}

func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("frequency(%d)", int(f))
}

// ParseFrequency accepts the names returned by String, plus "just-once".
func ParseFrequency(s string) (Frequency, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch normalized {
	case "", "just-once", "just_once", "justonce":
		return FrequencyJustOnce, nil
	}
	for f, name := range frequencyNames {
		if name == normalized {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown frequency %q", s)
}

// Interval returns the distance between two runs of a recurring audit,
// or zero for FrequencyJustOnce.
func (f Frequency) Interval() time.Duration {
	const day = 24 * time.Hour
	switch f {
	case FrequencyDaily:
		return day
	case FrequencyWeekly:
		return 7 * day
	case FrequencyMonthly:
		return 30 * day
	case FrequencyQuarterly:
		return 90 * day
	case FrequencyYearly:
		return 365 * day
	default:
		return 0
	}
}

// Recurring reports whether audits with this frequency get a successor.
func (f Frequency) Recurring() bool { return f.Interval() > 0 }

// Audit is one unit of scheduled work.
type Audit struct {
	ID string `json:"id" yaml:"-"`

	Domain    string `json:"domain" yaml:"domain"`
	User      string `json:"user" yaml:"user"`
	DCAddress string `json:"dc_ip,omitempty" yaml:"dc_ip"`

	// Password authenticates User. JustOnce audits clear it once
	// replication starts; recurring audits keep it so successors can run
	// unattended.
	Password string `json:"-" yaml:"password"`

	LDAPURL        string `json:"ldap_url" yaml:"ldap_url"`
	CAFile         string `json:"ca_file" yaml:"ca_file"`
	EmailField     string `json:"email_field" yaml:"email_field"`
	UserFilter     string `json:"user_filter" yaml:"user_filter"`
	AdminFilter    string `json:"admin_filter" yaml:"admin_filter"`
	Subject        string `json:"subject" yaml:"subject"`
	Message        string `json:"message" yaml:"message"`
	IncludeCracked bool   `json:"include_cracked" yaml:"include_cracked"`

	Start     time.Time `json:"start" yaml:"-"`
	End       time.Time `json:"end,omitzero" yaml:"-"`
	State     State     `json:"state" yaml:"-"`
	Frequency Frequency `json:"frequency" yaml:"-"`

	Report *Report `json:"report,omitempty" yaml:"-"`
}

// NewID returns a fresh audit identifier: a random UUID in hex form.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// DefaultEmailField is the directory attribute holding e-mail addresses.
const DefaultEmailField = "mail"

// Validate checks the fields a job needs before it can start.
func (a *Audit) Validate() error {
	problems := &ConfigurationError{Section: "audit"}
	required := []struct{ name, value string }{
		{"domain", a.Domain},
		{"user", a.User},
		{"ldap_url", a.LDAPURL},
		{"user_filter", a.UserFilter},
		{"admin_filter", a.AdminFilter},
		{"subject", a.Subject},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems.Add("%s is required", r.name)
		}
	}
	if a.Frequency != 0 && frequencyNames[a.Frequency] == "" {
		problems.Add("frequency %d is not valid", int(a.Frequency))
	}
	if u := strings.ToLower(a.LDAPURL); u != "" && !strings.HasPrefix(u, "ldap://") && !strings.HasPrefix(u, "ldaps://") {
		problems.Add("ldap_url must start with ldap:// or ldaps://")
	}
	return problems.OrNil()
}

// NextAudit returns the successor of an audit that ended with outcome, or
// false when none is due. Only finished recurring audits get one. The
// successor copies every setting except the report and completion time.
func NextAudit(a Audit, outcome State) (Audit, bool) {
	if outcome != StateFinished || !a.Frequency.Recurring() {
		return Audit{}, false
	}
	next := a
	next.ID = NewID()
	next.State = StateScheduled
	next.Start = a.Start.Add(a.Frequency.Interval())
	next.End = time.Time{}
	next.Report = nil
	return next, true
}
