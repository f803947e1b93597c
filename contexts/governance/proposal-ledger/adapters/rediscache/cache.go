package rediscache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	application "govledger/contexts/governance/proposal-ledger/application"
	"govledger/contexts/governance/proposal-ledger/domain/entities"
	"govledger/contexts/governance/proposal-ledger/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ledger:proposal:"

// putIfNewer replaces the entry only when ARGV[1] is a higher revision than
// the one stored in front of the record. Entries are "<revision>:<record>".
const putIfNewer = `
local current = redis.call('GET', KEYS[1])
if current then
	local sep = string.find(current, ':', 1, true)
	if sep and tonumber(string.sub(current, 1, sep - 1)) >= tonumber(ARGV[1]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1] .. ':' .. ARGV[2], 'PX', ARGV[3])
return 1
`

// Client is the subset of go-redis the cache needs; *redis.Client and
// *redis.ClusterClient both satisfy it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Cache stores encoded proposal records under ledger:proposal:<handle>,
// prefixed with the revision that produced them. Repository reads are
// stored as revision 0, so any committed write replaces them.
// Entries that fail to decode are treated as misses and dropped.
type Cache struct {
	client Client
	logger *slog.Logger
}

func New(client Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, logger: logger}
}

func (c *Cache) GetCachedProposal(ctx context.Context, handle entities.Identity) (entities.Proposal, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entities.Proposal{}, false, nil
		}
		return entities.Proposal{}, false, err
	}

	proposal, err := decodeEntry(raw)
	if err != nil || proposal.Handle != handle {
		c.logger.Warn("cached proposal discarded",
			"event", "ledger_cache_entry_discarded",
			"module", application.ModuleName,
			"layer", "adapter",
			"proposal_id", handle.String(),
		)
		_ = c.client.Del(ctx, cacheKey(handle)).Err()
		return entities.Proposal{}, false, nil
	}
	return proposal, true, nil
}

func (c *Cache) PutCachedProposal(ctx context.Context, proposal entities.Proposal, revision uint64, ttl time.Duration) error {
	raw, err := proposal.MarshalBinary()
	if err != nil {
		return err
	}
	return c.client.Eval(ctx, putIfNewer,
		[]string{cacheKey(proposal.Handle)},
		strconv.FormatUint(revision, 10), raw, ttl.Milliseconds(),
	).Err()
}

func (c *Cache) FillCachedProposal(ctx context.Context, proposal entities.Proposal, ttl time.Duration) error {
	raw, err := proposal.MarshalBinary()
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, cacheKey(proposal.Handle), encodeEntry(0, raw), ttl).Err()
}

func (c *Cache) InvalidateProposal(ctx context.Context, handle entities.Identity) error {
	return c.client.Del(ctx, cacheKey(handle)).Err()
}

func cacheKey(handle entities.Identity) string {
	return keyPrefix + handle.String()
}

func encodeEntry(revision uint64, record []byte) []byte {
	entry := strconv.AppendUint(nil, revision, 10)
	entry = append(entry, ':')
	return append(entry, record...)
}

func decodeEntry(raw []byte) (entities.Proposal, error) {
	sep := bytes.IndexByte(raw, ':')
	if sep < 0 {
		return entities.Proposal{}, errors.New("cache entry has no revision")
	}
	if _, err := strconv.ParseUint(string(raw[:sep]), 10, 64); err != nil {
		return entities.Proposal{}, err
	}
	var proposal entities.Proposal
	if err := proposal.UnmarshalBinary(raw[sep+1:]); err != nil {
		return entities.Proposal{}, err
	}
	return proposal, nil
}

var _ ports.ProposalCache = (*Cache)(nil)
