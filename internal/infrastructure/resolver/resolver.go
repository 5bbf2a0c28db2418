package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/monitoring"
	"github.com/turtacn/didagent/pkg/constants"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// Resolver is the agent's composite DID resolver: did:key locally, every
// other method through the configured remote resolver, with results held in
// an instance-owned TTL cache.
type Resolver struct {
	remote  service.DIDResolver
	didKey  didKeyResolver
	cache   *gocache.Cache
	metrics *monitoring.Metrics
	log     logger.Logger
}

var _ service.DIDResolver = (*Resolver)(nil)

// New builds a Resolver. remoteURL may be empty, in which case only did:key
// resolves.
func New(remoteURL string, cacheTTL time.Duration, metrics *monitoring.Metrics, log logger.Logger) *Resolver {
	r := &Resolver{
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
		metrics: metrics,
		log:     log.WithComponent("resolver"),
	}
	if remoteURL != "" {
		r.remote = &httpResolver{
			baseURL: strings.TrimSuffix(remoteURL, "/"),
			client:  &http.Client{Timeout: constants.DefaultRequestTimeout},
		}
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, did string) (*models.DIDDocument, error) {
	if cached, ok := r.cache.Get(did); ok {
		return cached.(*models.DIDDocument), nil
	}

	var doc *models.DIDDocument
	var err error
	if strings.HasPrefix(did, constants.DidKeyPrefix) {
		doc, err = r.didKey.Resolve(ctx, did)
	} else if r.remote != nil {
		doc, err = r.remote.Resolve(ctx, did)
	} else {
		err = errors.New(errors.CodeResolutionFailed, "no resolver configured for %q", did)
	}

	r.observe(err)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(did, doc)
	return doc, nil
}

// DwnEndpoints extracts the identity's data-node endpoints from its
// document. A document without the reserved service entry yields no
// endpoints and no error; an entry that exists but carries no usable URL is
// a per-identity failure.
func DwnEndpoints(doc *models.DIDDocument) ([]string, error) {
	for _, svc := range doc.Service {
		if svc.ID != constants.DwnServiceID && svc.ID != doc.ID+constants.DwnServiceID {
			continue
		}
		if svc.Type != constants.DwnServiceType {
			continue
		}
		if len(svc.ServiceEndpoint) == 0 {
			return nil, errors.New(errors.CodeResolutionFailed, "identity %s declares a data-node service without endpoints", doc.ID)
		}
		endpoints := make([]string, 0, len(svc.ServiceEndpoint))
		for _, e := range svc.ServiceEndpoint {
			if e != "" {
				endpoints = append(endpoints, e)
			}
		}
		if len(endpoints) == 0 {
			return nil, errors.New(errors.CodeResolutionFailed, "identity %s declares a data-node service without endpoints", doc.ID)
		}
		return endpoints, nil
	}
	return nil, nil
}

func (r *Resolver) observe(err error) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.metrics.ResolutionRequests.WithLabelValues(outcome).Inc()
}

// httpResolver queries a universal-resolver style HTTP endpoint.
type httpResolver struct {
	baseURL string
	client  *http.Client
}

type resolutionResult struct {
	DIDDocument *models.DIDDocument `json:"didDocument"`
}

func (h *httpResolver) Resolve(ctx context.Context, did string) (*models.DIDDocument, error) {
	url := fmt.Sprintf("%s/1.0/identifiers/%s", h.baseURL, did)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build resolution request")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeResolutionFailed, "resolution of %q failed", did)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeResolutionFailed, "resolver returned status %d for %q", resp.StatusCode, did)
	}
	var result resolutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, errors.CodeResolutionFailed, "invalid resolution response for %q", did)
	}
	if result.DIDDocument == nil {
		return nil, errors.New(errors.CodeResolutionFailed, "resolver returned no document for %q", did)
	}
	return result.DIDDocument, nil
}
