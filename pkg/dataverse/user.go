package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mightora/playwright-powerplatform/internal/logger"
)

// UpdateBusinessUnit moves the user into the given business unit. When a run
// requests both a business-unit change and a role assignment, this must run
// first: a user/role business-unit mismatch is a documented assignment
// rejection cause.
func (c *Client) UpdateBusinessUnit(ctx context.Context, userID, businessUnitID string) error {
	body := map[string]string{
		"businessunitid@odata.bind": "/businessunits(" + businessUnitID + ")",
	}
	_, err := c.Call(ctx, http.MethodPatch, fmt.Sprintf("systemusers(%s)", userID), body)
	return err
}

// AddUserToTeam associates the user with the team.
func (c *Client) AddUserToTeam(ctx context.Context, userID, teamID string) error {
	return c.postRef(ctx, "teams", teamID, "teammembership_association", "systemusers", userID, nil)
}

// RemoveUserFromTeam disassociates the user from the team. Removal is
// best-effort and never returns an error: a 404 just means the user was not
// a member, and nothing in cleanup may abort the run.
func (c *Client) RemoveUserFromTeam(ctx context.Context, userID, teamID string) {
	path := fmt.Sprintf("teams(%s)/teammembership_association/$ref?$id=%s",
		teamID, url.QueryEscape(c.entityURL("systemusers", userID)))
	if _, err := c.Call(ctx, http.MethodDelete, path, nil); err != nil {
		logger.Warnf("could not remove user %s from team %s (membership left as-is): %v", userID, teamID, err)
	}
}
