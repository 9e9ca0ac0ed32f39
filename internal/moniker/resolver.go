package moniker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"chain-indexer/internal/logger"

	coretypes "github.com/cometbft/cometbft/rpc/core/types"
)

const (
	defaultTTL     = 30 * time.Minute // validators change rarely
	rpcPageSize    = 100
	restPageLimit  = 500
	maxRPCPages    = 20
	requestTimeout = 10 * time.Second
	failureRetry   = time.Minute
)

// ValidatorLister is the slice of the CometBFT RPC client the resolver needs.
type ValidatorLister interface {
	Validators(ctx context.Context, height *int64, page, perPage *int) (*coretypes.ResultValidators, error)
}

// Resolver maps consensus hex addresses to monikers by matching the RPC
// validator set with REST staking validators on consensus pubkey.
type Resolver struct {
	rpc       ValidatorLister
	apiURL    string
	client    *http.Client
	log       *logger.Logger
	mu        sync.RWMutex
	cache     map[string]string // hex_cons_addr -> moniker
	lastFetch time.Time
	ttl       time.Duration
}

func NewResolver(rpc ValidatorLister, apiURL string, log *logger.Logger) *Resolver {
	if rpc == nil || apiURL == "" {
		return nil
	}
	return &Resolver{
		rpc:    rpc,
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: &http.Client{Timeout: requestTimeout},
		log:    log,
		cache:  map[string]string{},
		ttl:    defaultTTL,
	}
}

// Resolve returns the moniker for a consensus address, or "" when unknown.
func (r *Resolver) Resolve(ctx context.Context, consAddrHex string) string {
	if r == nil || consAddrHex == "" {
		return ""
	}
	key := normalizeAddr(consAddrHex)

	r.mu.RLock()
	m, ok := r.cache[key]
	stale := time.Since(r.lastFetch) > r.ttl
	r.mu.RUnlock()
	if ok && !stale {
		return m
	}

	r.refresh(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache[key]
}

func (r *Resolver) refresh(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// another caller may have refreshed while we waited
	if time.Since(r.lastFetch) <= r.ttl {
		return
	}

	rpcVals, err := r.fetchRPCValidators(ctx)
	if err != nil {
		r.log.Warnw("moniker resolver: fetch rpc validators", "error", err)
		r.lastFetch = time.Now().Add(failureRetry - r.ttl)
		return
	}
	restVals, err := r.fetchRESTValidators(ctx)
	if err != nil {
		r.log.Warnw("moniker resolver: fetch rest validators", "error", err)
		r.lastFetch = time.Now().Add(failureRetry - r.ttl)
		return
	}

	mapping := make(map[string]string, len(rpcVals))
	matched := 0
	for addr, pubKey := range rpcVals {
		mapping[addr] = restVals[pubKey]
		if mapping[addr] != "" {
			matched++
		}
	}
	r.cache = mapping
	r.lastFetch = time.Now()
	r.log.Debugw("moniker resolver refreshed", "validators", len(rpcVals), "matched", matched)
}

// fetchRPCValidators returns consensus address -> base64 pubkey for the
// current validator set.
func (r *Resolver) fetchRPCValidators(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	perPage := rpcPageSize
	for page := 1; page <= maxRPCPages; page++ {
		p := page
		res, err := r.rpc.Validators(ctx, nil, &p, &perPage)
		if err != nil {
			return nil, fmt.Errorf("validators page %d: %w", page, err)
		}
		for _, v := range res.Validators {
			if v == nil || v.PubKey == nil {
				continue
			}
			out[normalizeAddr(v.Address.String())] = base64.StdEncoding.EncodeToString(v.PubKey.Bytes())
		}
		if len(out) >= res.Total || len(res.Validators) == 0 {
			break
		}
	}
	return out, nil
}

type restValidatorsResp struct {
	Validators []struct {
		Description struct {
			Moniker string `json:"moniker"`
		} `json:"description"`
		ConsensusPubkey struct {
			Type string `json:"@type"`
			Key  string `json:"key"`
		} `json:"consensus_pubkey"`
	} `json:"validators"`
}

// fetchRESTValidators returns base64 pubkey -> moniker across all bond
// statuses, so unbonding proposers still resolve.
func (r *Resolver) fetchRESTValidators(ctx context.Context) (map[string]string, error) {
	statuses := []string{"BOND_STATUS_BONDED", "BOND_STATUS_UNBONDING", "BOND_STATUS_UNBONDED"}
	out := map[string]string{}
	var lastErr error
	for _, status := range statuses {
		url := fmt.Sprintf("%s/cosmos/staking/v1beta1/validators?pagination.limit=%d&status=%s", r.apiURL, restPageLimit, status)
		var payload restValidatorsResp
		if err := r.getJSON(ctx, url, &payload); err != nil {
			lastErr = err
			continue
		}
		for _, v := range payload.Validators {
			if v.ConsensusPubkey.Key != "" {
				out[canonicalKey(v.ConsensusPubkey.Key)] = v.Description.Moniker
			}
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// canonicalKey re-encodes a base64 key so padding differences still match.
func canonicalKey(key string) string {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(key)
		if err != nil {
			return key
		}
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func normalizeAddr(addr string) string {
	return strings.TrimPrefix(strings.ToUpper(addr), "0X")
}
