package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rushteam/hybridrec/core"
)

// Authenticator 从请求中识别用户，只负责"是谁"，不做权限判断。
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// Claims 是 HS256 token 的载荷。用户 ID 取 sub，缺省时取 email。
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuthenticator 校验 Bearer token：先查静态 token 表（演示账号），再按 HS256 JWT 校验。
type TokenAuthenticator struct {
	secret []byte
	static map[string]string
	ttl    time.Duration
}

// NewTokenAuthenticator 创建认证器。secret 为空时只接受静态 token。
func NewTokenAuthenticator(secret string, static map[string]string) *TokenAuthenticator {
	tokens := make(map[string]string, len(static))
	for tok, user := range static {
		tokens[tok] = user
	}
	return &TokenAuthenticator{secret: []byte(secret), static: tokens, ttl: 24 * time.Hour}
}

// issueToken 为 userID 签发 token。
func (a *TokenAuthenticator) issueToken(userID, email string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := time.Now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", core.ErrUnauthorized.With("missing bearer token")
	}
	if user, ok := a.static[raw]; ok {
		return user, nil
	}
	if len(a.secret) == 0 {
		return "", core.ErrUnauthorized.With("unknown token")
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", core.ErrUnauthorized.Wrap(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", core.ErrUnauthorized.With("invalid token claims")
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	if claims.Email != "" {
		return claims.Email, nil
	}
	return "", core.ErrUnauthorized.With("token has no subject")
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
