package usercontext

import "github.com/gofiber/fiber/v2"

// KeyUserContext is the Locals key the auth middleware stores the verified
// user context under.
const KeyUserContext = "USER_CONTEXT"

// UserContext carries the verified identity claims for a request. The
// identity provider verified the token; only the subject and optional
// display metadata survive into the request path.
type UserContext struct {
	Identity        string `json:"identity"`
	Email           string `json:"email"`
	DisplayName     string `json:"display_name"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// GetUserContext retrieves the user context from fiber context.
// Returns an anonymous context if none is set.
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(KeyUserContext); ctx != nil {
		if uc, ok := ctx.(UserContext); ok {
			return uc
		}
	}
	return UserContext{IsAuthenticated: false}
}

// GetIdentity returns the current subject identifier, or "" if the request
// is unauthenticated.
func GetIdentity(c *fiber.Ctx) string {
	return GetUserContext(c).Identity
}
