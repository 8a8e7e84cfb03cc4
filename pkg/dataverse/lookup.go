package dataverse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// The directory lookups resolve display names to record GUIDs. They are
// read-only and idempotent. No pagination: these are low-cardinality,
// exact-match queries, and when more than one record matches the first row is
// used in the order the server returned it.

func (c *Client) ResolveUserID(ctx context.Context, username string) (string, error) {
	return c.lookup(ctx, "systemusers", "systemuserid", "domainname", username, "user")
}

func (c *Client) ResolveRoleID(ctx context.Context, roleName string) (string, error) {
	return c.lookup(ctx, "roles", "roleid", "name", roleName, "role")
}

func (c *Client) ResolveTeamID(ctx context.Context, teamName string) (string, error) {
	return c.lookup(ctx, "teams", "teamid", "name", teamName, "team")
}

func (c *Client) ResolveBusinessUnitID(ctx context.Context, buName string) (string, error) {
	return c.lookup(ctx, "businessunits", "businessunitid", "name", buName, "business unit")
}

func (c *Client) lookup(ctx context.Context, entitySet, idField, filterField, name, kind string) (string, error) {
	query := url.Values{}
	query.Set("$select", idField)
	query.Set("$filter", fmt.Sprintf("%s eq '%s'", filterField, escapeODataString(name)))

	raw, err := c.Call(ctx, http.MethodGet, entitySet+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	var list struct {
		Value []map[string]any `json:"value"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", fmt.Errorf("decode %s lookup response: %w", entitySet, err)
	}
	if len(list.Value) == 0 {
		return "", &NotFoundError{Kind: kind, Name: name}
	}

	id, _ := list.Value[0][idField].(string)
	// Catch the malformed-id class of write failures here, where the record
	// name is still at hand for the error message.
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%s %q resolved to non-GUID id %q", kind, name, id)
	}
	return id, nil
}

// escapeODataString doubles single quotes per the OData string literal rules.
func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
