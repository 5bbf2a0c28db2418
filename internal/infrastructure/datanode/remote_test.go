package datanode

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

func TestRemoteNodeProcessMessage(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)
		authHeader = r.Header.Get("Authorization")

		var msg models.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "m1", msg.ID)

		_ = json.NewEncoder(w).Encode(models.Reply{Status: models.Status{Code: http.StatusAccepted}})
	}))
	defer server.Close()

	tokens := func(context.Context, string) (string, error) { return "test-token", nil }
	node := NewRemoteNode(server.URL, tokens, logger.NewNoopLogger())

	reply, err := node.ProcessMessage(context.Background(), &models.Message{
		ID:   "m1",
		DID:  aliceDID,
		Type: models.MessageTypeRecordsWrite,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, reply.Status.Code)
	assert.Equal(t, "Bearer test-token", authHeader)
}

func TestRemoteNodeEventLog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/events/"))
		assert.Equal(t, "w2", r.URL.Query().Get("since"))
		_ = json.NewEncoder(w).Encode([]models.EventEntry{
			{Watermark: "w3", MessageID: "m3"},
			{Watermark: "w4", MessageID: "m4"},
		})
	}))
	defer server.Close()

	node := NewRemoteNode(server.URL, nil, logger.NewNoopLogger())
	events, err := node.EventLog(context.Background(), aliceDID, "w2")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "m3", events[0].MessageID)
}

func TestRemoteNodeMissingMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	node := NewRemoteNode(server.URL, nil, logger.NewNoopLogger())
	msg, err := node.GetMessage(context.Background(), aliceDID, "m1")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestRemoteNodeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	node := NewRemoteNode(server.URL, nil, logger.NewNoopLogger())
	_, err := node.EventLog(context.Background(), aliceDID, "")
	require.Error(t, err)
	assert.Equal(t, errors.CodeEndpointUnreachable, errors.CodeOf(err))
}

// rawSigner signs directly with an in-test ed25519 key.
type rawSigner struct {
	key ed25519.PrivateKey
}

func (s rawSigner) Sign(_ context.Context, _ string, _ service.KeyRef, data []byte) ([]byte, error) {
	return ed25519.Sign(s.key, data), nil
}

func TestBearerTokenRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	token, err := BearerToken(context.Background(), rawSigner{key: priv}, "tenant",
		service.KeyRef{ID: "k1"}, "did:key:issuer", "https://dwn.example")
	require.NoError(t, err)

	claims, err := VerifyBearerToken(token, pub)
	require.NoError(t, err)
	assert.Equal(t, "did:key:issuer", claims["iss"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	// A different key must not verify.
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, err = VerifyBearerToken(token, otherPub)
	assert.Error(t, err)
}
