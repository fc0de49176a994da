// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TOKEN_EXPIRE_TIME_SEC indicates how many seconds until JWT expiration (0 => never).
	TOKEN_EXPIRE_TIME_SEC int
)

// Principal kinds carried in the "kind" claim. Registered users are keyed by
// their user id, guests by an opaque token minted at first contact.
const (
	KindUser  = "user"
	KindGuest = "guest"
)

// Principal identifies the caller of an authenticated request.
type Principal struct {
	Kind    string
	Subject string
}

// parseTokenExpireTime reads the TOKEN_EXPIRE_TIME env var and sets TOKEN_EXPIRE_TIME_SEC accordingly.
func parseTokenExpireTime() {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "never" || duration == "0" || duration == "" {
		TOKEN_EXPIRE_TIME_SEC = 0
	} else {
		d, err := time.ParseDuration(duration)
		if err != nil {
			fmt.Printf("failed to parse token expire time: %v\n", err)
			os.Exit(1)
		}
		TOKEN_EXPIRE_TIME_SEC = int(d.Seconds())
	}
}

// Init generates a fresh ed25519 key pair at runtime and sets the token expiration.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpireTime()
}

// InitFromPath reads ed25519 private/public keys from file and sets the token expiration.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	parseTokenExpireTime()
	return nil
}

// NewGuestToken mints a random opaque token for an anonymous player. The token
// doubles as the player's seat identity, so it must be unguessable.
func NewGuestToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate guest token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateJWT creates a signed JWT with "sub" = subject and "kind" = user or
// guest. Expiration follows TOKEN_EXPIRE_TIME_SEC; "never" omits the claim.
func CreateJWT(kind, subject string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"kind": kind,
	}

	if TOKEN_EXPIRE_TIME_SEC > 0 {
		claims["exp"] = time.Now().Add(time.Duration(TOKEN_EXPIRE_TIME_SEC) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a JWT string and returns the Principal it carries.
func AuthenticateJWT(tokenString string) (Principal, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})

	if err != nil {
		return Principal{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, fmt.Errorf("invalid jwt claims")
	}

	subject, ok := claims["sub"].(string)
	if !ok {
		return Principal{}, fmt.Errorf("missing sub in jwt")
	}
	kind, ok := claims["kind"].(string)
	if !ok {
		// Tokens minted before the kind claim existed belong to users.
		kind = KindUser
	}
	if kind != KindUser && kind != KindGuest {
		return Principal{}, fmt.Errorf("unknown principal kind %q", kind)
	}

	return Principal{Kind: kind, Subject: subject}, nil
}
