package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-secret"

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	userID := uuid.New()

	id, role, err := ParseToken(sign(t, testSecret, jwt.MapClaims{
		"user_id": userID.String(), "role": models.RoleAdmin, "exp": time.Now().Add(time.Hour).Unix(),
	}))
	require.NoError(t, err)
	assert.Equal(t, userID, id)
	assert.Equal(t, models.RoleAdmin, role)

	_, _, err = ParseToken(sign(t, "someone-else", jwt.MapClaims{"user_id": userID.String()}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = ParseToken(sign(t, testSecret, jwt.MapClaims{
		"user_id": userID.String(), "exp": time.Now().Add(-time.Minute).Unix(),
	}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = ParseToken(sign(t, testSecret, jwt.MapClaims{"user_id": "not-a-uuid"}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAdminRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	app := fiber.New()
	app.Get("/admin", Protected(), AdminRequired(), func(c *fiber.Ctx) error {
		id, _, err := CurrentUser(c)
		if err != nil {
			return err
		}
		return c.SendString(id.String())
	})

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	admin := sign(t, testSecret, jwt.MapClaims{"user_id": uuid.NewString(), "role": models.RoleAdmin})
	student := sign(t, testSecret, jwt.MapClaims{"user_id": uuid.NewString(), "role": models.RoleStudent})

	assert.Equal(t, http.StatusOK, call(admin))
	assert.Equal(t, http.StatusForbidden, call(student))
	assert.Equal(t, http.StatusBadRequest, call(""))
	assert.Equal(t, http.StatusUnauthorized, call(sign(t, "wrong", jwt.MapClaims{"role": models.RoleAdmin})))
}
