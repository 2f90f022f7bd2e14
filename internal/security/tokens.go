// Package security provides token issuance/validation and password hashing
// for operator authentication.
package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

// OperatorClaims holds JWT claims for both access and refresh tokens. The
// subject is the operator id; name and role ride along so the hub can stamp
// presence events without a lookup.
type OperatorClaims struct {
	jwt.RegisteredClaims
	OperatorName string `json:"operator_name"`
	Role         string `json:"role"`
	// TokenUse distinguishes access from refresh tokens ("access"/"refresh").
	TokenUse string `json:"token_use"`
}

// TokenProvider issues and validates operator JWTs using RS256 or ES256.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the given private
// key. issuer and audience are set on claims and validated on parse.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccess issues a short-lived access JWT for the operator.
func (p *TokenProvider) IssueAccess(operatorID, operatorName, role string) (token string, expiresAt time.Time, err error) {
	return p.issue(operatorID, operatorName, role, "access", p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT for the operator.
func (p *TokenProvider) IssueRefresh(operatorID, operatorName, role string) (token string, expiresAt time.Time, err error) {
	return p.issue(operatorID, operatorName, role, "refresh", p.refreshTTL)
}

func (p *TokenProvider) issue(operatorID, operatorName, role, use string, ttl time.Duration) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   operatorID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OperatorName: operatorName,
		Role:         role,
		TokenUse:     use,
	}
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidToken
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	return signed, expiresAt, err
}

// ValidateAccess parses and validates an access token (signature, exp, iss,
// aud, token_use). Returns the operator identity carried in the claims.
func (p *TokenProvider) ValidateAccess(tokenString string) (operatorID, operatorName, role string, err error) {
	claims, err := p.validate(tokenString, "access")
	if err != nil {
		return "", "", "", err
	}
	return claims.Subject, claims.OperatorName, claims.Role, nil
}

// ValidateRefresh parses and validates a refresh token. Returns the operator
// identity carried in the claims.
func (p *TokenProvider) ValidateRefresh(tokenString string) (operatorID, operatorName, role string, err error) {
	claims, err := p.validate(tokenString, "refresh")
	if err != nil {
		return "", "", "", err
	}
	return claims.Subject, claims.OperatorName, claims.Role, nil
}

func (p *TokenProvider) validate(tokenString, use string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.TokenUse != use {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
