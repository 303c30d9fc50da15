package job

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/crackomatic/crackomatic/internal/analyzer"
	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/util"
)

// AdminSubject is the subject of the report mail.
const AdminSubject = "Crack-O-Matic: Report"

const timeLayout = "2006-01-02 15:04:05"

const adminTemplate = `
This is the report of the latest Crack-O-Matic audit.

%s

Start: %s
End: %s

%s

%s`

const crackedHeader = "\n\nThe following users' passwords were recovered:\n\n"

// SearchBase turns "corp.example.com" into "DC=corp,DC=example,DC=com".
func SearchBase(domainName string) string {
	return "DC=" + strings.Join(strings.Split(domainName, "."), ",DC=")
}

// notify mails the affected users and the admins. Failures are logged and
// never change the audit outcome.
func (j *Job) notify(ctx context.Context, creds map[string]string, report *domain.Report) {
	users := crackedUsers(creds)

	if userMails, err := j.addresses(ctx, j.audit.UserFilter); err != nil {
		j.log.Error("looking up user addresses failed", "error", &domain.NotificationError{Recipients: "users", Err: err})
	} else if to := compromisedAddresses(users, userMails); len(to) > 0 {
		err := j.deps.Mailer.Send(ctx, to, j.audit.Subject, j.audit.Message)
		j.deps.Metrics.ObserveNotification("users", err)
		if err != nil {
			j.log.Error("notifying users failed", "error", &domain.NotificationError{Recipients: "users", Err: err})
		} else {
			j.log.Info("notified users", "count", len(to))
		}
	}

	adminMails, err := j.addresses(ctx, j.audit.AdminFilter)
	if err != nil {
		j.log.Error("looking up admin addresses failed", "error", &domain.NotificationError{Recipients: "admins", Err: err})
		return
	}
	to := make([]string, 0, len(adminMails))
	for _, addr := range adminMails {
		to = append(to, addr)
	}
	if len(to) == 0 {
		j.log.Error("No admin e-mail addresses found")
		return
	}
	body := AdminMessage(j.audit, report, users, j.settings.ReportURL, j.deps.Now())
	err = j.deps.Mailer.Send(ctx, sortedCopy(to), AdminSubject, body)
	j.deps.Metrics.ObserveNotification("admins", err)
	if err != nil {
		j.log.Error("notifying admins failed", "error", &domain.NotificationError{Recipients: "admins", Err: err})
	}
}

// addresses maps upper-cased account names to e-mail addresses for the
// directory entries matching filter. Entries without an address are skipped.
func (j *Job) addresses(ctx context.Context, filter string) (map[string]string, error) {
	field := j.audit.EmailField
	if field == "" {
		field = domain.DefaultEmailField
	}
	entries, err := j.deps.Directory.Query(ctx, domain.DirectoryQuery{
		URL:        j.audit.LDAPURL,
		BaseDN:     SearchBase(j.audit.Domain),
		CAFile:     j.audit.CAFile,
		BindDN:     j.audit.User + "@" + j.audit.Domain,
		Password:   j.secret,
		Filter:     filter,
		Attributes: []string{"sAMAccountName", field},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, attrs := range entries {
		names, mails := attrs["sAMAccountName"], attrs[field]
		if len(names) == 0 || len(mails) == 0 {
			continue
		}
		out[strings.ToUpper(names[0])] = mails[0]
	}
	return out, nil
}

// compromisedAddresses looks up the address of every recovered account,
// dropping a "DOMAIN\" prefix, and keeps the ones that look like addresses.
func compromisedAddresses(users []string, mails map[string]string) []string {
	var to []string
	for _, u := range users {
		addr := mails[strings.ToUpper(util.AccountName(u))]
		if strings.Contains(addr, "@") {
			to = append(to, addr)
		}
	}
	return to
}

// AdminMessage renders the report mail body.
func AdminMessage(a domain.Audit, report *domain.Report, cracked []string, reportURL string, end time.Time) string {
	url := ""
	if reportURL != "" {
		url = fmt.Sprintf("%s/report?id=%s", strings.TrimRight(reportURL, "/"), a.ID)
	}
	list := ""
	if a.IncludeCracked {
		list = crackedHeader + strings.Join(sortedCopy(cracked), "\n")
	}
	return fmt.Sprintf(adminTemplate,
		url,
		a.Start.Format(timeLayout),
		end.Format(timeLayout),
		analyzer.TextReport(report),
		list,
	)
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
