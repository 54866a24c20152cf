// Package identity resolves ledger user IDs to display names and avatars.
// Resolution is best-effort: aggregate operations must keep working when the
// resolver is absent or failing, so callers go through Label, which always
// produces something printable.
package identity

import (
	"context"
	"fmt"
)

type UserInfo struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type Resolver interface {
	Resolve(ctx context.Context, userID int64) (UserInfo, error)
}

// Label returns the resolved display name, or the generic fallback when the
// resolver is nil or fails. It never returns an error.
func Label(ctx context.Context, r Resolver, userID int64) string {
	if r == nil {
		return Fallback(userID)
	}
	info, err := r.Resolve(ctx, userID)
	if err != nil || info.DisplayName == "" {
		return Fallback(userID)
	}
	return info.DisplayName
}

func Fallback(userID int64) string {
	return fmt.Sprintf("User %d", userID)
}
