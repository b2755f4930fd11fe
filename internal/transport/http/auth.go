package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminCredentials is the single admin account. PasswordHash is a bcrypt hash.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// BasicAuth rejects requests whose basic-auth credentials do not match.
func BasicAuth(creds AdminCredentials) gin.HandlerFunc {
	hash := []byte(creds.PasswordHash)
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(creds.Username)) != 1 ||
			bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
			c.Header("WWW-Authenticate", `Basic realm="quiz-admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Message: "invalid admin credentials"})
			return
		}
		c.Set("admin", user)
		c.Next()
	}
}
