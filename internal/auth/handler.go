package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"dockit/internal/docstore"
	"dockit/internal/engine"
)

// Handler handles authentication endpoints.
type Handler struct {
	store  *docstore.Store
	issuer *Issuer
}

// NewHandler creates a new auth Handler.
func NewHandler(s *docstore.Store, issuer *Issuer) *Handler {
	return &Handler{store: s, issuer: issuer}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.BadRequestError("email and password are required")
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		return engine.NewAppError("INTERNAL_ERROR", 500, "Failed to hash password")
	}

	id := docstore.NewID()
	ph := h.store.Dialect.Placeholder
	_, err = docstore.Exec(c.Context(),
		h.store.DB,
		"INSERT INTO _users (id, email, password_hash, roles) VALUES ("+ph(1)+", "+ph(2)+", "+ph(3)+", "+ph(4)+")",
		id, body.Email, hash, `["user"]`)
	if err != nil {
		if errors.Is(docstore.MapError(h.store.Dialect, err), docstore.ErrUniqueViolation) {
			return engine.NewAppError("CONFLICT", 409, "Email is already registered")
		}
		return err
	}

	pair, err := h.generateTokenPair(c.Context(), id, []string{"user"})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": pair})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	if !isActive(user["active"]) {
		return engine.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	userID, _ := user["id"].(string)
	roles := extractRoles(user["roles"])

	pair, err := h.generateTokenPair(ctx, userID, roles)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()
	ph := h.store.Dialect.Placeholder

	row, err := docstore.QueryRow(ctx, h.store.DB,
		"SELECT rt.token, rt.user_id, rt.expires_at, u.roles, u.active "+
			"FROM _refresh_tokens rt JOIN _users u ON u.id = rt.user_id "+
			"WHERE rt.token = "+ph(1), body.RefreshToken)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		_, _ = docstore.Exec(ctx, h.store.DB,
			"DELETE FROM _refresh_tokens WHERE token = "+ph(1), body.RefreshToken)
		return engine.UnauthorizedError("Refresh token expired")
	}

	if !isActive(row["active"]) {
		return engine.UnauthorizedError("Account is disabled")
	}

	// Rotate: delete the used refresh token
	_, _ = docstore.Exec(ctx, h.store.DB,
		"DELETE FROM _refresh_tokens WHERE token = "+ph(1), body.RefreshToken)

	userID, _ := row["user_id"].(string)
	roles := extractRoles(row["roles"])

	pair, err := h.generateTokenPair(ctx, userID, roles)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ph := h.store.Dialect.Placeholder
	_, _ = docstore.Exec(c.Context(), h.store.DB,
		"DELETE FROM _refresh_tokens WHERE token = "+ph(1), body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/register", h.Register)
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

// --- helpers ---

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	ph := h.store.Dialect.Placeholder
	return docstore.QueryRow(ctx, h.store.DB,
		"SELECT id, email, password_hash, roles, active FROM _users WHERE email = "+ph(1), email)
}

func (h *Handler) generateTokenPair(ctx context.Context, userID string, roles []string) (*TokenPair, error) {
	accessToken, err := h.issuer.AccessToken(userID, roles)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken, expiresAt := h.issuer.RefreshToken()

	ph := h.store.Dialect.Placeholder
	_, err = docstore.Exec(ctx, h.store.DB,
		"INSERT INTO _refresh_tokens (token, user_id, expires_at) VALUES ("+ph(1)+", "+ph(2)+", "+ph(3)+")",
		refreshToken, userID, expiresAt)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func isActive(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return false
	}
}

func extractRoles(v any) []string {
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		result := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				result = append(result, s)
			}
		}
		return result
	case string:
		var parsed []string
		if err := json.Unmarshal([]byte(roles), &parsed); err == nil {
			return parsed
		}
		return []string{}
	default:
		return []string{}
	}
}
