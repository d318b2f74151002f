package policy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	contractx "github.com/chronicai/chronicai/agent/contract"
)

const (
	// DefaultTTL matches how long a loaded allow-list stays authoritative
	// before the YAML source is consulted again.
	DefaultTTL = 5 * time.Minute

	allowedTablesKey = "allowed_tables"
)

// Allowlist caches the set of lower-cased table names specialists may
// query. Refreshes on TTL and fails closed: when the source cannot be
// read and no fresh cache exists, every caller gets an error rather than
// a widened (or empty) list.
type Allowlist struct {
	mu          sync.Mutex
	path        string
	ttl         time.Duration
	cache       map[string]struct{}
	lastRefresh time.Time
	now         func() time.Time
}

func NewAllowlist(path string, ttl time.Duration) (*Allowlist, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: allow-list path is required", contractx.ErrConfig)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Allowlist{
		path: path,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

// Tables returns the current allow-list, refreshing from the YAML source
// when the TTL has elapsed. A failed refresh never serves a stale-beyond-TTL
// or empty set; it rejects.
func (a *Allowlist) Tables() (map[string]struct{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if len(a.cache) > 0 && now.Sub(a.lastRefresh) < a.ttl {
		return a.cache, nil
	}

	tables, err := a.load()
	if err != nil {
		return nil, err
	}
	a.cache = tables
	a.lastRefresh = now
	return a.cache, nil
}

// Contains reports whether the given table (bare or schema-qualified,
// any case) is allow-listed.
func (a *Allowlist) Contains(table string) (bool, error) {
	tables, err := a.Tables()
	if err != nil {
		return false, err
	}
	t := strings.ToLower(strings.TrimSpace(table))
	if _, ok := tables[t]; ok {
		return true, nil
	}
	if idx := strings.LastIndex(t, "."); idx >= 0 {
		_, ok := tables[t[idx+1:]]
		return ok, nil
	}
	return false, nil
}

// Sorted returns the allow-listed names in deterministic order, for
// schema snapshot requests.
func (a *Allowlist) Sorted() ([]string, error) {
	tables, err := a.Tables()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tables))
	for t := range tables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Allowlist) load() (map[string]struct{}, error) {
	v := viper.New()
	v.SetConfigFile(a.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read allow-list %s: %v", contractx.ErrConfig, a.path, err)
	}

	items := v.GetStringSlice(allowedTablesKey)
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		t := strings.ToLower(strings.TrimSpace(item))
		if t == "" {
			continue
		}
		out[t] = struct{}{}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s must be a non-empty list in %s", contractx.ErrConfig, allowedTablesKey, a.path)
	}
	return out, nil
}
