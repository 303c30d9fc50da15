// Package replication fetches the NT hashes of a domain from one of its
// domain controllers.
//
// Two methods exist. DRSR speaks the directory replication protocol
// natively and needs nothing installed. Samba joins a throw-away domain
// controller into the job's work directory with samba-tool and reads the
// replicated SAM with pdbedit.
package replication

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crackomatic/crackomatic/internal/config"
	"github.com/crackomatic/crackomatic/internal/domain"
)

// EmptyLM is the LM hash of an empty password; DCs no longer store LM
// hashes.
const EmptyLM = "aad3b435b51404eeaad3b435b51404ee"

// Account is one replicated credential.
type Account struct {
	Name   string
	RID    uint32
	NTHash []byte
}

// Line renders the account as "user:rid:lm:nt:::".
func (a Account) Line() string {
	return fmt.Sprintf("%s:%d:%s:%s:::", a.Name, a.RID, EmptyLM, hex.EncodeToString(a.NTHash))
}

// Dump joins the lines of every account that has an NT hash.
func Dump(accounts []Account) string {
	lines := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if len(a.NTHash) != 16 {
			continue
		}
		lines = append(lines, a.Line())
	}
	return strings.Join(lines, "\n")
}

// New returns the retriever for the configured method.
func New(cfg config.Replication, logger *slog.Logger) (domain.HashRetriever, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Method {
	case config.MethodDRSR, "":
		return NewDRSR(logger), nil
	case config.MethodSamba:
		return NewSamba(cfg.SambaTool, cfg.Pdbedit, logger), nil
	default:
		return nil, fmt.Errorf("replication: unknown method %q", cfg.Method)
	}
}

// target is the host to replicate from: the configured DC address, else
// the domain name itself.
func target(req domain.HashRequest) string {
	if req.DCAddress != "" {
		return req.DCAddress
	}
	return req.Domain
}

// DomainDN turns "corp.example" into "DC=corp,DC=example".
func DomainDN(name string) string {
	parts := strings.Split(strings.Trim(name, "."), ".")
	for i, p := range parts {
		parts[i] = "DC=" + p
	}
	return strings.Join(parts, ",")
}
