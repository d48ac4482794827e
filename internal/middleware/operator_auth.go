package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// OperatorTokenHeader carries the shared operator secret.
const OperatorTokenHeader = "X-Operator-Token"

// OperatorAuth admits requests whose X-Operator-Token matches the bcrypt hash.
// An empty hash disables the operator API entirely.
func OperatorAuth(tokenHash string) fiber.Handler {
	hash := []byte(tokenHash)
	return func(c *fiber.Ctx) error {
		if len(hash) == 0 {
			return fiber.NewError(http.StatusServiceUnavailable, "operator api disabled")
		}
		token := c.Get(OperatorTokenHeader)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing operator token")
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid operator token")
		}
		return c.Next()
	}
}
