// Package jwt выпускает и проверяет подписанные HS256 токены доступа.
//
// В токене хранится только идентификатор аккаунта и роль на момент входа.
// Актуальная роль и статус перечитываются из хранилища на каждом запросе.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken возвращается для любого неразборчивого, просроченного
// или подписанного чужим ключом токена.
var ErrInvalidToken = errors.New("invalid token")

// Claims описывает данные, хранящиеся в токене.
type Claims struct {
	AccountUID string `json:"uid"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Maker описывает генерацию и разбор токенов.
type Maker interface {
	GenerateToken(accountUID, role string) (string, error)
	ParseToken(tokenStr string) (*Claims, error)
}

// MakerImpl подписывает токены секретным ключом и задает им время жизни.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создает MakerImpl.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// GenerateToken создает токен для аккаунта.
func (j *MakerImpl) GenerateToken(accountUID, role string) (string, error) {
	const op = "jwt.GenerateToken"
	now := j.now()
	claims := Claims{
		AccountUID: accountUID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// ParseToken проверяет подпись и срок действия токена.
func (j *MakerImpl) ParseToken(tokenStr string) (*Claims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountUID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}
