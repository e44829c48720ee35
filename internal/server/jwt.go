package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"marsarena/pkg/core"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionTTL 超过后 UDP 绑定令牌失效
	SessionTTL = 30 * time.Minute

	tokenIssuer   = "marsarena-server"
	tokenAudience = "udp-bind"
)

var ErrInvalidToken = errors.New("无效的会话令牌")

// bindClaims UDP 绑定令牌的载荷
type bindClaims struct {
	ClientID core.ClientID `json:"cid"`
	jwt.RegisteredClaims
}

// TokenIssuer 签发和校验 Welcome 中下发的 UDP 绑定令牌
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenIssuer secret 为空时生成进程内随机密钥
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("生成令牌密钥失败: %v", err))
		}
	}
	return &TokenIssuer{key: key, ttl: ttl, now: time.Now}
}

// NewTokenIssuerFromEnv 从 JWT_SECRET 读取密钥
func NewTokenIssuerFromEnv() *TokenIssuer {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Printf("未设置 JWT_SECRET，使用随机密钥（重启后旧令牌失效）")
	}
	return NewTokenIssuer(secret, SessionTTL)
}

// Issue 为客户端签发令牌
func (ti *TokenIssuer) Issue(id core.ClientID) (string, error) {
	now := ti.now()
	claims := bindClaims{
		ClientID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			Subject:   strconv.FormatUint(uint64(id), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
	if err != nil {
		return "", fmt.Errorf("签名令牌失败: %w", err)
	}
	return signed, nil
}

// Verify 校验签名、签发者、受众和有效期，返回客户端 ID
func (ti *TokenIssuer) Verify(raw string) (core.ClientID, error) {
	var claims bindClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return ti.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ClientID == 0 || claims.Subject != strconv.FormatUint(uint64(claims.ClientID), 10) {
		return 0, ErrInvalidToken
	}
	return claims.ClientID, nil
}
