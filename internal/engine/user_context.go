package engine

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated caller, set by auth middleware.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole checks whether the user has a specific role.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole("admin")
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *UserContext {
	user, _ := c.Locals("user").(*UserContext)
	return user
}

// actorID returns the caller identity attached to create/update payloads.
// Presence is enforced upstream by the auth middleware.
func actorID(c *fiber.Ctx) string {
	if user := GetUser(c); user != nil {
		return user.ID
	}
	return ""
}
