package testutil

import (
	"net/http"

	id "dedup/pkg/domain"
	"dedup/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context, as the auth middleware
// would. Invalid IDs are silently ignored.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsedUserID, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsedUserID))
	}
	return req
}

// WithAuth adds a user ID and its permissions to the request context.
// This is the typical state for an authenticated request.
func WithAuth(req *http.Request, userID string, perms ...string) *http.Request {
	req = WithUserID(req, userID)
	return req.WithContext(requestcontext.WithPermissions(req.Context(), perms))
}
