package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenInvalid indicates the bearer token failed signature or claim validation.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrTokenExpired indicates the bearer token is outside its validity window.
	ErrTokenExpired = errors.New("auth: token expired")
)

// apiClaims mirrors the claims minted by the external auth service.
type apiClaims struct {
	ShopID string   `json:"shop_id,omitempty"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed access tokens issued by the auth service.
// Token issuance lives outside this API; only verification happens here.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTVerifier constructs a verifier for HS256 tokens signed with the shared secret.
func NewJWTVerifier(secret string, issuer string, audience string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWTVerifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}, nil
}

// VerifyToken parses and validates the raw bearer token, returning the identity it carries.
func (v *JWTVerifier) VerifyToken(_ context.Context, raw string) (*Identity, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, ErrTokenInvalid
	}

	claims := &apiClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, ErrTokenInvalid
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, ErrTokenInvalid
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return nil, ErrTokenInvalid
	}

	roles := make([]string, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}

	return &Identity{
		UID:    uid,
		ShopID: strings.TrimSpace(claims.ShopID),
		Email:  strings.TrimSpace(claims.Email),
		Roles:  roles,
	}, nil
}
