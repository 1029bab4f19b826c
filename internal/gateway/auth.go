package gateway

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coursehub/notification-engine/internal/domain"
)

// UserIDFromToken validates an HS256 session token issued by the
// platform and returns the subject claim, which carries the user id.
func UserIDFromToken(token string, secret []byte) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: session token is required", domain.ErrPermission)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: invalid session token: %v", domain.ErrPermission, err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("%w: session token has no subject", domain.ErrPermission)
	}

	return subject, nil
}
