package dataverse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDataverse routes Web API requests by shape so tests can fail individual
// role-assignment strategies and count which ones were attempted.
type fakeDataverse struct {
	counts  map[string]int
	respond map[string]http.HandlerFunc
}

func newFakeDataverse() *fakeDataverse {
	return &fakeDataverse{
		counts:  map[string]int{},
		respond: map[string]http.HandlerFunc{},
	}
}

func (f *fakeDataverse) client(t *testing.T) *Client {
	t.Helper()
	client, _ := newTestClient(t, f.handle)
	return client
}

func (f *fakeDataverse) route(r *http.Request) string {
	p := strings.TrimPrefix(r.URL.Path, "/api/data/v9.2/")
	userRef := fmt.Sprintf("systemusers(%s)/systemuserroles_association/$ref", userGUID)
	switch {
	case r.Method == http.MethodPost && p == userRef:
		if r.Header.Get("MSCRM.SuppressDuplicateDetection") != "" {
			return "user-ref-header"
		}
		return "user-ref"
	case r.Method == http.MethodPost && p == fmt.Sprintf("roles(%s)/systemuserroles_association/$ref", roleGUID):
		return "role-ref"
	case r.Method == http.MethodPost && p == "Associate":
		return "associate"
	case r.Method == http.MethodPost && p == "systemuserrolescollection":
		return "collection"
	case r.Method == http.MethodPost && strings.HasSuffix(p, "AddUserToRole"):
		return "add-user-to-role"
	case r.Method == http.MethodGet && p == fmt.Sprintf("systemusers(%s)/systemuserroles_association", userGUID):
		return "list-roles"
	case r.Method == http.MethodGet && p == fmt.Sprintf("systemusers(%s)", userGUID):
		return "user-bu"
	case r.Method == http.MethodGet && p == fmt.Sprintf("roles(%s)", roleGUID):
		return "role-bu"
	case r.Method == http.MethodDelete && strings.HasSuffix(p, "/$ref"):
		return "delete"
	}
	return "unknown"
}

func (f *fakeDataverse) handle(w http.ResponseWriter, r *http.Request) {
	key := f.route(r)
	f.counts[key]++
	if h, ok := f.respond[key]; ok {
		h(w, r)
		return
	}
	switch key {
	case "user-bu", "role-bu":
		w.Write([]byte(`{"_businessunitid_value":"bu-1"}`))
	case "list-roles":
		w.Write([]byte(`{"value":[]}`))
	case "unknown":
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func respondStatus(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestAssignRole_FirstStrategySucceeds(t *testing.T) {
	fake := newFakeDataverse()
	client := fake.client(t)

	err := client.AssignRole(context.Background(), userGUID, roleGUID)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.counts["user-ref"])
	assert.Zero(t, fake.counts["role-ref"])
	assert.Zero(t, fake.counts["associate"])
	assert.Zero(t, fake.counts["collection"])
	assert.Zero(t, fake.counts["add-user-to-role"])
	assert.Zero(t, fake.counts["user-ref-header"])
}

func TestAssignRole_DuplicateShortCircuits(t *testing.T) {
	fake := newFakeDataverse()
	fake.respond["user-ref"] = respondStatus(http.StatusConflict, `{"error":{"message":"Cannot insert duplicate key"}}`)
	fake.respond["list-roles"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[{"roleid":%q}]}`, roleGUID)
	}
	client := fake.client(t)

	err := client.AssignRole(context.Background(), userGUID, roleGUID)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.counts["user-ref"])
	assert.Equal(t, 1, fake.counts["list-roles"])
	assert.Zero(t, fake.counts["role-ref"], "strategies 2-6 must not run after a confirmed duplicate")
	assert.Zero(t, fake.counts["associate"])
	assert.Zero(t, fake.counts["collection"])
	assert.Zero(t, fake.counts["add-user-to-role"])
	assert.Zero(t, fake.counts["user-ref-header"])
}

func TestAssignRole_FallsBackToInverseAssociation(t *testing.T) {
	fake := newFakeDataverse()
	fake.respond["user-ref"] = respondStatus(http.StatusInternalServerError, "boom")
	client := fake.client(t)

	err := client.AssignRole(context.Background(), userGUID, roleGUID)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.counts["user-ref"])
	assert.Equal(t, 1, fake.counts["role-ref"])
	assert.Zero(t, fake.counts["associate"])
}

func TestAssignRole_BusinessUnitMismatchDoesNotBlock(t *testing.T) {
	fake := newFakeDataverse()
	fake.respond["user-bu"] = respondStatus(http.StatusOK, `{"_businessunitid_value":"bu-a"}`)
	fake.respond["role-bu"] = respondStatus(http.StatusOK, `{"_businessunitid_value":"bu-b"}`)
	client := fake.client(t)

	err := client.AssignRole(context.Background(), userGUID, roleGUID)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.counts["user-ref"])
}

func TestAssignRole_AllStrategiesExhausted(t *testing.T) {
	fake := newFakeDataverse()
	failure := respondStatus(http.StatusBadRequest, `{"error":{"message":"no such route"}}`)
	for _, key := range []string{"user-ref", "user-ref-header", "role-ref", "associate", "collection", "add-user-to-role"} {
		fake.respond[key] = failure
	}
	client := fake.client(t)

	err := client.AssignRole(context.Background(), userGUID, roleGUID)

	var assignErr *RoleAssignmentError
	require.ErrorAs(t, err, &assignErr)
	assert.Equal(t, http.StatusBadRequest, assignErr.LastStatus)
	assert.Len(t, assignErr.Attempts, 6)
	assert.NotEmpty(t, assignErr.Hints())

	for _, key := range []string{"user-ref", "role-ref", "associate", "collection", "add-user-to-role", "user-ref-header"} {
		assert.Equal(t, 1, fake.counts[key], "strategy %s", key)
	}
}

func TestRemoveAllRoles_ContinuesPastFailures(t *testing.T) {
	role2 := "bbbbbbbb-2222-2222-2222-bbbbbbbbbbbb"
	roles := []string{roleGUID, role2, teamGUID}

	fake := newFakeDataverse()
	fake.respond["list-roles"] = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[{"roleid":%q},{"roleid":%q},{"roleid":%q}]}`, roles[0], roles[1], roles[2])
	}
	fake.respond["delete"] = func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("$id"), role2) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
	client := fake.client(t)

	removed, err := client.RemoveAllRoles(context.Background(), userGUID)
	require.NoError(t, err, "partial failure must not propagate")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, fake.counts["delete"], "all deletions must be attempted")
}

func TestRemoveAllRoles_ListingFailurePropagates(t *testing.T) {
	fake := newFakeDataverse()
	fake.respond["list-roles"] = respondStatus(http.StatusForbidden, "")
	client := fake.client(t)

	_, err := client.RemoveAllRoles(context.Background(), userGUID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestRemoveUserFromTeam_SwallowsFailure(t *testing.T) {
	var status int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status = http.StatusNotFound
		w.WriteHeader(status)
	}))
	defer srv.Close()
	client := NewClient(ClientConfig{ResourceURL: srv.URL, AccessToken: "tok", HTTPClient: srv.Client()})

	// Must not panic or propagate anything: a 404 just means the user was
	// never a member.
	client.RemoveUserFromTeam(context.Background(), userGUID, teamGUID)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateBusinessUnit_SendsBind(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.UpdateBusinessUnit(context.Background(), userGUID, buGUID)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, fmt.Sprintf("/api/data/v9.2/systemusers(%s)", userGUID), gotPath)
	assert.Contains(t, gotBody, "businessunitid@odata.bind")
	assert.Contains(t, gotBody, buGUID)
}
