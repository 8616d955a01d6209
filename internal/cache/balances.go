package cache

import (
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

// Snapshot is the derived state of a group at one version.
type Snapshot struct {
	GroupID    string
	Version    int64
	Balances   core.Balances
	Statements []core.MemberStatement
}

// BalanceCache memoizes derived balances per group version. Because every
// write bumps the version, a stale entry can never be returned for a newer
// ledger state.
type BalanceCache struct {
	lru *LRUCache[Snapshot]
}

func NewBalanceCache(maxSize int, ttl time.Duration) *BalanceCache {
	return &BalanceCache{lru: NewLRUCache[Snapshot](maxSize, ttl)}
}

func balanceKey(groupID string, version int64) string {
	return groupID + "@" + strconv.FormatInt(version, 10)
}

// Get returns a copy so callers cannot mutate the cached balances.
func (c *BalanceCache) Get(groupID string, version int64) (Snapshot, bool) {
	if c == nil {
		return Snapshot{}, false
	}
	s, ok := c.lru.Get(balanceKey(groupID, version))
	if !ok {
		return Snapshot{}, false
	}
	s.Balances = s.Balances.Clone()
	s.Statements = append([]core.MemberStatement(nil), s.Statements...)
	return s, true
}

func (c *BalanceCache) Put(s Snapshot) {
	if c == nil {
		return
	}
	s.Balances = s.Balances.Clone()
	s.Statements = append([]core.MemberStatement(nil), s.Statements...)
	c.lru.Set(balanceKey(s.GroupID, s.Version), s)
}

// Invalidate drops every cached version of groupID.
func (c *BalanceCache) Invalidate(groupID string) int {
	if c == nil {
		return 0
	}
	prefix := groupID + "@"
	return c.lru.DeleteFunc(func(key string, _ Snapshot) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func (c *BalanceCache) CleanExpired() int {
	if c == nil {
		return 0
	}
	return c.lru.CleanExpired()
}

func (c *BalanceCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return c.lru.Stats()
}
