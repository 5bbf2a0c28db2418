package datanode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/pkg/constants"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// TokenSource mints a bearer token for one outbound request. A nil source
// sends unauthenticated requests.
type TokenSource func(ctx context.Context, audience string) (string, error)

// RemoteNode speaks the node HTTP protocol against one endpoint. Request
// failures surface as endpoint_unreachable so the sync engine can skip the
// endpoint for the rest of its cycle.
type RemoteNode struct {
	endpoint string
	client   *http.Client
	tokens   TokenSource
	log      logger.Logger
}

var _ service.DataNode = (*RemoteNode)(nil)

// RemoteFactory builds a client for an endpoint. The sync engine uses it so
// tests can substitute in-process nodes.
type RemoteFactory func(endpoint string) service.DataNode

// NewRemoteNode builds a client for endpoint.
func NewRemoteNode(endpoint string, tokens TokenSource, log logger.Logger) *RemoteNode {
	return &RemoteNode{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: constants.DefaultRequestTimeout},
		tokens:   tokens,
		log:      log.WithComponent("datanode.remote"),
	}
}

func (r *RemoteNode) ProcessMessage(ctx context.Context, msg *models.Message) (*models.Reply, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode message")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reply models.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, errors.ErrEndpointUnreachable(r.endpoint, err)
	}
	return &reply, nil
}

func (r *RemoteNode) EventLog(ctx context.Context, did string, since string) ([]models.EventEntry, error) {
	u := fmt.Sprintf("%s/events/%s", r.endpoint, url.PathEscape(did))
	if since != "" {
		u += "?since=" + url.QueryEscape(since)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build request")
	}
	resp, err := r.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeEndpointUnreachable, "endpoint %s returned status %d", r.endpoint, resp.StatusCode)
	}
	var events []models.EventEntry
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, errors.ErrEndpointUnreachable(r.endpoint, err)
	}
	return events, nil
}

func (r *RemoteNode) GetMessage(ctx context.Context, did string, messageID string) (*models.Message, error) {
	u := fmt.Sprintf("%s/messages/%s/%s", r.endpoint, url.PathEscape(did), url.PathEscape(messageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build request")
	}
	resp, err := r.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// A node that no longer holds the message answers 404; that is an
	// answer, not a transport failure.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeEndpointUnreachable, "endpoint %s returned status %d", r.endpoint, resp.StatusCode)
	}
	var msg models.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, errors.ErrEndpointUnreachable(r.endpoint, err)
	}
	return &msg, nil
}

func (r *RemoteNode) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if r.tokens != nil {
		token, err := r.tokens(ctx, r.endpoint)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.ErrEndpointUnreachable(r.endpoint, err)
	}
	return resp, nil
}
