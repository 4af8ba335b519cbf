package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nimasrn/bigchat/internal/model"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

const issuer = "bigchat"

type Claims struct {
	ID           string             `json:"id"`
	Type         model.SenderType   `json:"type"`
	Role         model.StaffRole    `json:"role,omitempty"`
	DocumentID   string             `json:"documentId,omitempty"`
	DocumentType model.DocumentType `json:"documentType,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() model.Principal {
	return model.Principal{
		ID:           c.ID,
		Type:         c.Type,
		Role:         c.Role,
		DocumentID:   c.DocumentID,
		DocumentType: c.DocumentType,
	}
}

// Tokens signs and verifies HS256 bearer credentials.
type Tokens struct {
	secret []byte
	expire time.Duration
	now    func() time.Time
}

func NewTokens(secret string, expire time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), expire: expire, now: time.Now}
}

func (t *Tokens) Issue(p model.Principal) (string, error) {
	now := t.now()
	claims := &Claims{
		ID:           p.ID,
		Type:         p.Type,
		Role:         p.Role,
		DocumentID:   p.DocumentID,
		DocumentType: p.DocumentType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expire)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *Tokens) Verify(tokenString string) (model.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Principal{}, ErrTokenExpired
		}
		return model.Principal{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return model.Principal{}, ErrTokenInvalid
	}
	if claims.Type != model.SenderClient && claims.Type != model.SenderAdmin {
		return model.Principal{}, ErrTokenInvalid
	}
	return claims.Principal(), nil
}
