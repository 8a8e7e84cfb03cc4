package dataverse

import (
	"fmt"
	"strings"
)

// Hinted is implemented by errors that carry a remediation checklist for the
// structured diagnostic block printed before a non-zero exit.
type Hinted interface {
	Hints() []string
}

// AuthError reports a failed token acquisition. The client secret never
// appears in the message.
type AuthError struct {
	Status    int
	OAuthCode string
	Message   string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token acquisition failed (HTTP %d, %s): %s", e.Status, e.OAuthCode, e.Message)
	}
	return fmt.Sprintf("token acquisition failed: %s", e.Message)
}

func (e *AuthError) Hints() []string {
	switch e.OAuthCode {
	case "invalid_scope":
		return []string{
			"the Dataverse URL does not match a resource the app registration can request; check the environment URL for typos",
			"the URL must be the environment root (https://<org>.crm.dynamics.com), not a page inside it",
		}
	case "invalid_client":
		return []string{
			"the client secret is wrong or expired; create a new secret on the app registration",
			"check that the client id belongs to the app registration in this tenant",
		}
	case "invalid_request":
		return []string{
			"the tenant id looks malformed; it must be the directory (tenant) GUID",
		}
	}
	return []string{
		"verify tenant id, client id, client secret and Dataverse URL against the app registration",
	}
}

// APIError is any non-2xx response from the Dataverse Web API.
type APIError struct {
	Status int
	Method string
	URL    string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned HTTP %d: %s", e.Method, e.URL, e.Status, truncate(e.Body, 512))
}

func (e *APIError) Hints() []string {
	switch e.Status {
	case 400:
		return []string{
			"one of the record ids in the request is malformed or refers to a deleted record",
			"if a role was being assigned, the role may belong to a different business unit than the user",
		}
	case 401:
		return []string{
			"the service principal has no application user in this environment; create one in the Power Platform admin center and give it a security role",
			"admin consent may not have been granted for the app registration",
		}
	case 403:
		return []string{
			"the application user lacks the privilege for this operation; System Administrator is the simplest role that covers user provisioning",
		}
	case 404:
		return []string{
			"the entity set or action route is not available on this environment version",
			"check that the Dataverse URL points at the intended environment",
		}
	}
	return nil
}

// IsUnauthorized reports whether the error is the distinct 401 case that
// signals a missing application user or consent grant.
func (e *APIError) IsUnauthorized() bool {
	return e.Status == 401
}

// NotFoundError is a directory lookup that matched no record.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s named %q exists in this environment", e.Kind, e.Name)
}

// RoleAssignmentError means every assignment strategy was exhausted.
type RoleAssignmentError struct {
	UserID     string
	RoleID     string
	LastStatus int
	Attempts   []string
}

func (e *RoleAssignmentError) Error() string {
	return fmt.Sprintf("all %d role assignment strategies failed for user %s, role %s (last HTTP status %d)",
		len(e.Attempts), e.UserID, e.RoleID, e.LastStatus)
}

func (e *RoleAssignmentError) Hints() []string {
	hints := (&APIError{Status: e.LastStatus}).Hints()
	return append(hints, e.Attempts...)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
