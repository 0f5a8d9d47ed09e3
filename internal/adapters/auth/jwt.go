// Package auth validates bearer tokens issued by the account service and turns
// them into an authenticated user id.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingToken = errors.New("missing token")
)

const ctxUserKey = "user_id"

type Claims struct {
	FirstName string `json:"first_name,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret, issuer string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs an HS256 token for user. Used by the seeding tool and tests.
func (m *Manager) Issue(user domain.UserID, firstName string) (string, error) {
	now := m.now()
	claims := Claims{
		FirstName: firstName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   string(user),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !domain.ValidUserID(domain.UserID(claims.Subject)) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromRequest reads "Authorization: Bearer <t>" or, for browsers that cannot
// set headers on a WebSocket upgrade, the access_token query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("access_token")
}

func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error()})
			return
		}
		claims, err := m.Verify(token)
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.auth").Str("path", c.FullPath()).Msg("rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ctxUserKey, domain.UserID(claims.Subject))
		c.Next()
	}
}

// UserID returns the identity stored by Middleware.
func UserID(c *gin.Context) (domain.UserID, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return "", false
	}
	id, ok := v.(domain.UserID)
	return id, ok
}
