package trust

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cedrospay/agentpay/internal/cacheutil"
	"github.com/cedrospay/agentpay/internal/circuitbreaker"
	"github.com/cedrospay/agentpay/pkg/storage"
)

// IdentityRegistryClient reads the on-chain ERC-8004 Identity Registry.
// IdentityResolver reads ownerOf and tokenURI when the agent ID is known,
// and first maps an address to an agent ID through
// balanceOf+tokenOfOwnerByIndex when only an address is known. The
// resolver does not call GetAgentWallet.
type IdentityRegistryClient interface {
	OwnerOf(ctx context.Context, agentID string) (string, error)
	TokenURI(ctx context.Context, agentID string) (string, error)
	GetAgentWallet(ctx context.Context, agentID string) (string, error)
	BalanceOf(ctx context.Context, owner string) (int64, error)
	TokenOfOwnerByIndex(ctx context.Context, owner string, index int64) (string, error)
}

// IdentityResolver looks up an Identity by agent ID or wallet address,
// combining the on-chain registry read with an off-chain registration
// file fetch (HTTPS/IPFS/data URI), all behind an in-memory + storage
// two-tier cache.
type IdentityResolver struct {
	registry   IdentityRegistryClient
	store      storage.Store
	breakers   *circuitbreaker.Manager
	httpClient *http.Client
	ttl        time.Duration

	mu    sync.RWMutex
	local map[string]cacheutil.CachedValue[Identity]
}

// NewIdentityResolver builds an IdentityResolver.
func NewIdentityResolver(registry IdentityRegistryClient, store storage.Store, breakers *circuitbreaker.Manager, httpClient *http.Client, ttl time.Duration) *IdentityResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IdentityResolver{
		registry:   registry,
		store:      store,
		breakers:   breakers,
		httpClient: httpClient,
		ttl:        ttl,
		local:      make(map[string]cacheutil.CachedValue[Identity]),
	}
}

// Resolve looks up an Identity given either an agentID or, when agentID is
// empty, an owner address (via balanceOf/tokenOfOwnerByIndex).
func (r *IdentityResolver) Resolve(ctx context.Context, agentID, ownerAddress string) (Identity, error) {
	key := agentID
	if key == "" {
		key = "owner:" + strings.ToLower(ownerAddress)
	}

	return cacheutil.ReadThrough(
		&r.mu,
		func(now time.Time) (Identity, bool) {
			entry, ok := r.local[key]
			if ok && now.Sub(entry.FetchedAt) < r.ttl {
				return entry.Value, true
			}
			return Identity{}, false
		},
		func(now time.Time) (Identity, error) {
			if cached, found := r.readPersistentCache(ctx, key); found {
				r.local[key] = cacheutil.CachedValue[Identity]{Value: cached, FetchedAt: now}
				return cached, nil
			}

			identity, err := r.resolveFresh(ctx, agentID, ownerAddress)
			if err != nil {
				return Identity{}, err
			}

			r.local[key] = cacheutil.CachedValue[Identity]{Value: identity, FetchedAt: now}
			r.writePersistentCache(ctx, key, identity, now)
			return identity, nil
		},
	)
}

func (r *IdentityResolver) readPersistentCache(ctx context.Context, key string) (Identity, bool) {
	rec, err := r.store.Get(ctx, storage.CollIdentityCache, key)
	if err != nil {
		return Identity{}, false
	}
	payload, err := json.Marshal(rec.Value)
	if err != nil {
		return Identity{}, false
	}
	var cached cachedIdentity
	if err := json.Unmarshal(payload, &cached); err != nil {
		return Identity{}, false
	}
	if time.Since(cached.CachedAt) > r.ttl {
		return Identity{}, false
	}
	return cached.Identity, true
}

func (r *IdentityResolver) writePersistentCache(ctx context.Context, key string, identity Identity, now time.Time) {
	payload, err := json.Marshal(cachedIdentity{Identity: identity, CachedAt: now})
	if err != nil {
		return
	}
	var value map[string]interface{}
	if err := json.Unmarshal(payload, &value); err != nil {
		return
	}
	_ = r.store.Save(ctx, storage.CollIdentityCache, key, value)
}

func (r *IdentityResolver) resolveFresh(ctx context.Context, agentID, ownerAddress string) (Identity, error) {
	result, err := r.breakers.Execute(circuitbreaker.ServiceIdentityRegistry, func() (interface{}, error) {
		return r.readOnChain(ctx, agentID, ownerAddress)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("trust: identity registry: %w", err)
	}
	identity := result.(Identity)

	registration, err := r.fetchRegistration(ctx, identity.RegistryURI)
	if err == nil {
		identity.Name = registration.Name
		identity.Description = registration.Description
		identity.X402Support = registration.X402Support
		identity.Active = registration.Active
		identity.SupportedTrust = registration.SupportedTrust
		for _, s := range registration.Services {
			identity.Services = append(identity.Services, Service{Name: s.Name, Endpoint: s.Endpoint, Version: s.Version})
		}
	}

	return identity, nil
}

func (r *IdentityResolver) readOnChain(ctx context.Context, agentID, ownerAddress string) (Identity, error) {
	if agentID == "" {
		balance, err := r.registry.BalanceOf(ctx, ownerAddress)
		if err != nil {
			return Identity{}, err
		}
		if balance == 0 {
			return Identity{}, fmt.Errorf("no agent NFT owned by %s", ownerAddress)
		}
		agentID, err = r.registry.TokenOfOwnerByIndex(ctx, ownerAddress, 0)
		if err != nil {
			return Identity{}, err
		}
	}

	owner, err := r.registry.OwnerOf(ctx, agentID)
	if err != nil {
		return Identity{}, err
	}
	uri, err := r.registry.TokenURI(ctx, agentID)
	if err != nil {
		return Identity{}, err
	}

	return Identity{AgentID: agentID, Owner: owner, RegistryURI: uri}, nil
}

// registrationFile is the ERC-8004 off-chain registration document.
type registrationFile struct {
	Type           string              `json:"type"`
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Services       []registrationSvc   `json:"services,omitempty"`
	X402Support    bool                `json:"x402Support"`
	Active         bool                `json:"active"`
	SupportedTrust []string            `json:"supportedTrust,omitempty"`
	Registrations  []registrationEntry `json:"registrations,omitempty"`
}

type registrationSvc struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Version  string `json:"version,omitempty"`
}

type registrationEntry struct {
	AgentID       string `json:"agentId"`
	AgentRegistry string `json:"agentRegistry"`
}

var ipfsGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
}

// fetchRegistration fetches the off-chain registration JSON from an https://,
// ipfs://, or data: URI.
func (r *IdentityResolver) fetchRegistration(ctx context.Context, uri string) (registrationFile, error) {
	switch {
	case strings.HasPrefix(uri, "data:application/json;base64,"):
		raw := strings.TrimPrefix(uri, "data:application/json;base64,")
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return registrationFile{}, fmt.Errorf("trust: decode data URI: %w", err)
		}
		var reg registrationFile
		return reg, json.Unmarshal(decoded, &reg)

	case strings.HasPrefix(uri, "ipfs://"):
		hash := strings.TrimPrefix(uri, "ipfs://")
		var lastErr error
		for _, gw := range ipfsGateways {
			reg, err := r.fetchHTTP(ctx, gw+hash)
			if err == nil {
				return reg, nil
			}
			lastErr = err
		}
		return registrationFile{}, fmt.Errorf("trust: all IPFS gateways failed: %w", lastErr)

	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return r.fetchHTTP(ctx, uri)

	default:
		return registrationFile{}, fmt.Errorf("trust: unsupported registration URI scheme: %q", uri)
	}
}

func (r *IdentityResolver) fetchHTTP(ctx context.Context, url string) (registrationFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return registrationFile{}, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return registrationFile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return registrationFile{}, fmt.Errorf("trust: registration fetch: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return registrationFile{}, err
	}
	var reg registrationFile
	return reg, json.Unmarshal(body, &reg)
}
