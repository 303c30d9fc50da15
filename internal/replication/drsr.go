package replication

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	"github.com/oiweiwei/go-msrpc/msrpc/ad"
	"github.com/oiweiwei/go-msrpc/msrpc/drsr/drsuapi/v4"
	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
	"github.com/oiweiwei/go-msrpc/msrpc/epm/epm/v3"
	"github.com/oiweiwei/go-msrpc/ndr"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
	"github.com/oiweiwei/go-msrpc/ssp/gssapi"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// Replication batch limits per GetNCChanges call.
const (
	maxObjects = 1000
	maxBytes   = 10 * 1024 * 1024
)

// DRSR replicates the domain naming context over MS-DRSR, the protocol
// domain controllers use among themselves. The account needs the
// "Replicating Directory Changes (All)" rights.
type DRSR struct {
	log *slog.Logger
}

// NewDRSR returns a DRSR retriever.
func NewDRSR(logger *slog.Logger) *DRSR {
	return &DRSR{log: logger.With("component", "replication", "method", "drsr")}
}

type drsrSession struct {
	conn   dcerpc.Conn
	client drsuapi.DrsuapiClient
	handle *drsuapi.Handle
}

// RetrieveHashes replicates every object of the domain and returns the
// NT hashes of all accounts that have one.
func (d *DRSR) RetrieveHashes(ctx context.Context, req domain.HashRequest) (string, error) {
	host := target(req)
	d.log.Info("Start replication", "domain", req.Domain, "server", host)

	ctx, s, err := d.connect(ctx, req, host)
	if err != nil {
		return "", err
	}
	defer s.conn.Close(context.WithoutCancel(ctx))

	if err := s.bind(ctx); err != nil {
		return "", err
	}
	accounts, err := s.replicate(ctx, DomainDN(req.Domain), d.log)
	if err != nil {
		return "", err
	}
	d.log.Info("Replication finished", "accounts", len(accounts))
	return Dump(accounts), nil
}

// securityContext binds the audit's credential and the authentication
// mechanisms to ctx. Nothing is registered in go-msrpc's process-wide
// stores, so each audit authenticates with its own account.
func securityContext(ctx context.Context, req domain.HashRequest) context.Context {
	cred := credential.NewFromPassword(req.User, req.Password,
		credential.Domain(strings.ToUpper(req.Domain)))
	return gssapi.NewSecurityContext(ctx,
		gssapi.WithCredential(cred),
		gssapi.WithMechanismFactory(ssp.SPNEGO),
		gssapi.WithMechanismFactory(ssp.NTLM),
	)
}

func (d *DRSR) connect(ctx context.Context, req domain.HashRequest, host string) (context.Context, *drsrSession, error) {
	ctx = securityContext(ctx, req)

	cc, err := dcerpc.Dial(ctx, "ncacn_ip_tcp:"+host,
		epm.EndpointMapper(ctx, net.JoinHostPort(host, "135"), dcerpc.WithInsecure()))
	if err != nil {
		return ctx, nil, fmt.Errorf("replication: connecting to %s: %w", host, err)
	}
	client, err := drsuapi.NewDrsuapiClient(ctx, cc, dcerpc.WithSeal(), dcerpc.WithTargetName(host))
	if err != nil {
		cc.Close(ctx)
		return ctx, nil, fmt.Errorf("replication: creating DRSUAPI client: %w", err)
	}
	return ctx, &drsrSession{conn: cc, client: client}, nil
}

func (s *drsrSession) bind(ctx context.Context) error {
	caps := drsuapi.ExtensionsInt{
		Flags: drsuapi.ExtGetNCChangesRequestV8 | drsuapi.ExtStrongEncryption | drsuapi.ExtGetNCChangesReplyV6,
	}
	b, err := ndr.Marshal(&caps, ndr.Opaque)
	if err != nil {
		return fmt.Errorf("replication: marshal extensions: %w", err)
	}
	resp, err := s.client.Bind(ctx, &drsuapi.BindRequest{Client: &drsuapi.Extensions{Data: b}})
	if err != nil {
		return fmt.Errorf("replication: DsBind: %w", err)
	}
	if resp.Return != 0 {
		return fmt.Errorf("replication: DsBind returned 0x%08x", resp.Return)
	}
	s.handle = resp.DRS
	return nil
}

// replicate pages through the naming context until the DC reports no
// more data.
func (s *drsrSession) replicate(ctx context.Context, nc string, log *slog.Logger) ([]Account, error) {
	var (
		accounts []Account
		cookie   *drsuapi.Vector
	)
	for {
		resp, err := s.client.GetNCChanges(ctx, &drsuapi.GetNCChangesRequest{
			Handle:    s.handle,
			InVersion: 8,
			In: &drsuapi.MessageGetNCChangesRequest{
				Value: &drsuapi.MessageGetNCChangesRequest_V8{
					V8: &drsuapi.MessageGetNCChangesRequestV8{
						NC:              &drsuapi.DSName{StringName: nc},
						From:            cookie,
						Flags:           drsuapi.InitSync | drsuapi.WritableReplica | drsuapi.NeverSynced,
						MaxObjectsCount: maxObjects,
						MaxBytesCount:   maxBytes,
					},
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("replication: DsGetNCChanges: %w", err)
		}
		if resp.Return != 0 {
			return nil, fmt.Errorf("replication: DsGetNCChanges returned 0x%08x", resp.Return)
		}
		if resp.Out == nil {
			return accounts, nil
		}
		reply, ok := resp.Out.Value.(*drsuapi.MessageGetNCChangesReply_V6)
		if !ok || reply == nil || reply.V6 == nil {
			return nil, fmt.Errorf("replication: unexpected GetNCChanges reply %T", resp.Out.Value)
		}

		batch := s.accounts(reply.V6, log)
		accounts = append(accounts, batch...)
		log.Debug("Replicated batch", "accounts", len(batch), "more", reply.V6.MoreData)
		if !reply.V6.MoreData {
			return accounts, nil
		}
		cookie = reply.V6.To
	}
}

// accounts extracts name, RID and decrypted NT hash of every object that
// carries a password.
func (s *drsrSession) accounts(v6 *drsuapi.MessageGetNCChangesReplyV6, log *slog.Logger) []Account {
	var out []Account
	prefixes := v6.PrefixTableSource.Build()
	for obj := v6.Objects; obj != nil; obj = obj.NextEntityInfo {
		if obj.EntityInfo == nil || obj.EntityInfo.AttributeBlock.Attribute == nil {
			continue
		}
		var (
			acct      Account
			encrypted []byte
		)
		for _, attr := range obj.EntityInfo.AttributeBlock.Attribute {
			oid, err := prefixes.AttributeToOID(attr.AttributeType)
			if err != nil {
				continue
			}
			for _, v := range attr.AttributeValue.Values {
				name, val, err := ad.ParseNameAndValue(oid, v.Value, prefixes)
				if err != nil {
					continue
				}
				switch name {
				case "sAMAccountName":
					if str, ok := val.(string); ok {
						acct.Name = str
					}
				case "objectSid":
					if sid, ok := val.(*dtyp.SID); ok && sid != nil && len(sid.SubAuthority) > 0 {
						acct.RID = sid.SubAuthority[len(sid.SubAuthority)-1]
					}
				case "unicodePwd":
					if b, ok := val.([]byte); ok && len(b) > 0 {
						encrypted = b
					}
				}
			}
		}
		if acct.Name == "" || acct.RID == 0 || len(encrypted) == 0 {
			continue
		}
		hash, err := drsuapi.DecryptHash(s.client.Conn().Context(), acct.RID, encrypted)
		if err != nil {
			log.Warn("Failed to decrypt hash", "account", acct.Name, "error", err)
			continue
		}
		acct.NTHash = hash
		out = append(out, acct)
	}
	return out
}
