package dataverse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mightora/playwright-powerplatform/internal/logger"
)

// roleStrategy is one shape of role-assignment call. Dataverse environments
// differ in which association routes they accept, so assignment walks an
// ordered list until one succeeds. Adding or removing a shape is a data
// change, not a control-flow change.
type roleStrategy struct {
	name    string
	attempt func(ctx context.Context, c *Client, userID, roleID string) error
}

var roleStrategies = []roleStrategy{
	{
		name: "user $ref association",
		attempt: func(ctx context.Context, c *Client, userID, roleID string) error {
			return c.postRef(ctx, "systemusers", userID, "systemuserroles_association", "roles", roleID, nil)
		},
	},
	{
		name: "role $ref association (inverse)",
		attempt: func(ctx context.Context, c *Client, userID, roleID string) error {
			return c.postRef(ctx, "roles", roleID, "systemuserroles_association", "systemusers", userID, nil)
		},
	},
	{
		name: "Associate action",
		attempt: func(ctx context.Context, c *Client, userID, roleID string) error {
			body := map[string]any{
				"Target":       map[string]string{"@odata.id": c.entityURL("systemusers", userID)},
				"Relationship": "systemuserroles_association",
				"RelatedEntities": []map[string]string{
					{"@odata.id": c.entityURL("roles", roleID)},
				},
			}
			_, err := c.Call(ctx, http.MethodPost, "Associate", body)
			return err
		},
	},
	{
		name: "join collection insert",
		attempt: func(ctx context.Context, c *Client, userID, roleID string) error {
			body := map[string]string{
				"systemuserid@odata.bind": "/systemusers(" + userID + ")",
				"roleid@odata.bind":       "/roles(" + roleID + ")",
			}
			_, err := c.Call(ctx, http.MethodPost, "systemuserrolescollection", body)
			return err
		},
	},
	{
		name: "AddUserToRole action",
		attempt: func(ctx context.Context, c *Client, userID, roleID string) error {
			body := map[string]any{
				"User": map[string]string{
					"systemuserid": userID,
					"@odata.type":  "Microsoft.Dynamics.CRM.systemuser",
				},
			}
			path := fmt.Sprintf("roles(%s)/Microsoft.Dynamics.CRM.AddUserToRole", roleID)
			_, err := c.Call(ctx, http.MethodPost, path, body)
			return err
		},
	},
	{
		name: "user $ref association with duplicate-detection header",
		attempt: func(ctx context.Context, c *Client, userID, roleID string) error {
			extra := http.Header{"MSCRM.SuppressDuplicateDetection": []string{"false"}}
			return c.postRef(ctx, "systemusers", userID, "systemuserroles_association", "roles", roleID, extra)
		},
	},
}

// AssignRole associates a security role with a user, walking the strategy
// list in order until one succeeds. A duplicate signal from the first
// strategy short-circuits: if a re-query confirms the role is already
// present, the assignment is treated as done and no further strategy runs.
func (c *Client) AssignRole(ctx context.Context, userID, roleID string) error {
	// The check never blocks assignment; a cross-business-unit assignment is
	// sometimes exactly what the caller wants to see fail loudly below.
	c.warnOnBusinessUnitMismatch(ctx, userID, roleID)

	var attempts []string
	lastStatus := 0
	for i, strategy := range roleStrategies {
		err := strategy.attempt(ctx, c, userID, roleID)
		if err == nil {
			logger.Infof("assigned role %s to user %s via %s", roleID, userID, strategy.name)
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			lastStatus = apiErr.Status
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", strategy.name, err))
		logger.Warnf("role assignment via %s failed: %v", strategy.name, err)

		if i == 0 && isDuplicateSignal(err) {
			assigned, checkErr := c.roleAssigned(ctx, userID, roleID)
			if checkErr == nil && assigned {
				logger.Infof("role %s is already assigned to user %s", roleID, userID)
				return nil
			}
		}
	}

	return &RoleAssignmentError{
		UserID:     userID,
		RoleID:     roleID,
		LastStatus: lastStatus,
		Attempts:   attempts,
	}
}

// RemoveAllRoles deletes every role association the user currently has.
// Individual deletions are best-effort: a failed delete is logged and the
// loop continues. Only the initial listing can fail the call.
func (c *Client) RemoveAllRoles(ctx context.Context, userID string) (int, error) {
	roleIDs, err := c.listRoleIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, roleID := range roleIDs {
		if err := c.RemoveRole(ctx, userID, roleID); err != nil {
			logger.Warnf("could not remove role %s from user %s: %v", roleID, userID, err)
			continue
		}
		removed++
	}
	if removed < len(roleIDs) {
		logger.Warnf("removed %d of %d roles from user %s", removed, len(roleIDs), userID)
	}
	return removed, nil
}

// RemoveRole deletes a single role association.
func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	path := fmt.Sprintf("systemusers(%s)/systemuserroles_association/$ref?$id=%s",
		userID, url.QueryEscape(c.entityURL("roles", roleID)))
	_, err := c.Call(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *Client) listRoleIDs(ctx context.Context, userID string) ([]string, error) {
	path := fmt.Sprintf("systemusers(%s)/systemuserroles_association?$select=roleid", userID)
	raw, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var list struct {
		Value []struct {
			RoleID string `json:"roleid"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode role association list: %w", err)
	}

	ids := make([]string, 0, len(list.Value))
	for _, row := range list.Value {
		ids = append(ids, row.RoleID)
	}
	return ids, nil
}

func (c *Client) roleAssigned(ctx context.Context, userID, roleID string) (bool, error) {
	ids, err := c.listRoleIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if strings.EqualFold(id, roleID) {
			return true, nil
		}
	}
	return false, nil
}

// postRef creates a $ref association on owner's navigation property pointing
// at the target record.
func (c *Client) postRef(ctx context.Context, ownerSet, ownerID, nav, targetSet, targetID string, extra http.Header) error {
	body := map[string]string{"@odata.id": c.entityURL(targetSet, targetID)}
	path := fmt.Sprintf("%s(%s)/%s/$ref", ownerSet, ownerID, nav)
	_, err := c.call(ctx, http.MethodPost, path, body, extra)
	return err
}

func isDuplicateSignal(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusConflict {
		return true
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "duplicate") ||
		strings.Contains(body, "already exist") ||
		strings.Contains(body, "already associated")
}

func (c *Client) warnOnBusinessUnitMismatch(ctx context.Context, userID, roleID string) {
	userBU, err := c.recordBusinessUnit(ctx, "systemusers", userID)
	if err != nil {
		logger.Debugf("business unit pre-check skipped: %v", err)
		return
	}
	roleBU, err := c.recordBusinessUnit(ctx, "roles", roleID)
	if err != nil {
		logger.Debugf("business unit pre-check skipped: %v", err)
		return
	}
	if userBU != "" && roleBU != "" && !strings.EqualFold(userBU, roleBU) {
		logger.Warnf("user business unit %s differs from role business unit %s; the environment may reject the assignment", userBU, roleBU)
	}
}

func (c *Client) recordBusinessUnit(ctx context.Context, entitySet, id string) (string, error) {
	path := fmt.Sprintf("%s(%s)?$select=_businessunitid_value", entitySet, id)
	raw, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	var row struct {
		BusinessUnitID string `json:"_businessunitid_value"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return "", err
	}
	return row.BusinessUnitID, nil
}
