package dataverse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	// NewClient normalizes the resource URL to https, so the fake must
	// actually serve TLS.
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{
		ResourceURL: srv.URL,
		AccessToken: "test-token",
		HTTPClient:  srv.Client(),
	})
	return client, srv
}

func TestClient_Call_SetsODataHeaders(t *testing.T) {
	var got http.Header
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.Path
		w.Write([]byte(`{"value":[]}`))
	})

	_, err := client.Call(context.Background(), http.MethodGet, "systemusers", nil)
	require.NoError(t, err)

	assert.Equal(t, "/api/data/v9.2/systemusers", gotPath)
	assert.Equal(t, "Bearer test-token", got.Get("Authorization"))
	assert.Equal(t, "4.0", got.Get("OData-Version"))
	assert.Equal(t, "4.0", got.Get("OData-MaxVersion"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Empty(t, got.Get("Prefer"), "reads should not request representations")
}

func TestClient_Call_SpeaksTLS(t *testing.T) {
	var sawTLS bool
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sawTLS = r.TLS != nil
		w.Write([]byte(`{"value":[]}`))
	})

	_, err := client.Call(context.Background(), http.MethodGet, "systemusers", nil)
	require.NoError(t, err)
	assert.True(t, sawTLS, "requests must go over https regardless of the configured scheme")
}

func TestClient_Call_BodySetsContentType(t *testing.T) {
	var contentType, prefer string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		prefer = r.Header.Get("Prefer")
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := client.Call(context.Background(), http.MethodPost, "systemusers", map[string]string{"firstname": "a"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "return=representation", prefer)
}

func TestClient_Call_NonSuccessBecomesAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"malformed guid"}}`))
	})

	_, err := client.Call(context.Background(), http.MethodGet, "roles", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "malformed guid")
	assert.NotEmpty(t, apiErr.Hints())
}

func TestClient_Call_UnauthorizedIsDistinct(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Call(context.Background(), http.MethodGet, "systemusers", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnauthorized())
	assert.Contains(t, strings.Join(apiErr.Hints(), " "), "application user")
}
