package utils

import (
	"errors"
	"time"

	"voltslot/models"

	"github.com/golang-jwt/jwt"
)

// TokenVerifier validates HS256 bearer tokens issued by the identity service.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// GenerateToken creates a signed JWT token with the given subject and role.
// Used by tests and local tooling; production tokens come from the identity service.
func (v *TokenVerifier) GenerateToken(subject, role string, duration time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(duration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ValidateToken parses and validates a token string and returns the token if valid.
func (v *TokenVerifier) ValidateToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure that the token's signing method is HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
}

// ActorFromToken extracts the caller identity from a valid token. Only user
// and operator roles may be carried by bearer tokens.
func (v *TokenVerifier) ActorFromToken(tokenString string) (models.Actor, error) {
	if len(v.secret) == 0 {
		return models.Actor{}, errors.New("token verification is not configured")
	}
	token, err := v.ValidateToken(tokenString)
	if err != nil {
		return models.Actor{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Actor{}, errors.New("invalid token")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return models.Actor{}, errors.New("token does not contain a valid 'sub' claim")
	}
	role, _ := claims["role"].(string)
	switch role {
	case "":
		role = models.RoleUser
	case models.RoleUser, models.RoleOperator:
	default:
		return models.Actor{}, errors.New("token carries an unsupported role")
	}
	return models.Actor{ID: sub, Role: role}, nil
}
