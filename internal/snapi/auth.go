package snapi

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

var ErrUnsupportedVersion = errors.New("unsupported protocol version")

const passKeyLen = 96

// AuthParams are the key derivation parameters the server stores per account.
type AuthParams struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	PwNonce    string `json:"pw_nonce"`
	PwCost     int    `json:"pw_cost"`
	PwSalt     string `json:"pw_salt"`
}

// Keys are derived from the account password. PW is sent to the server, MK
// and AK stay local.
type Keys struct {
	PW string
	MK string
	AK string
}

type SignInResult struct {
	Token   string
	Version string
	Keys    Keys
}

// AuthParams fetches the derivation parameters for email. mfa carries a
// previously requested two-factor code keyed by its mfa_key.
func (c *Client) AuthParams(ctx context.Context, email string, mfa map[string]string) (AuthParams, error) {
	q := url.Values{}
	q.Set("email", strings.TrimSpace(email))
	q.Set("api", APIVersion)
	for key, value := range mfa {
		q.Set(key, value)
	}
	var out AuthParams
	err := c.doJSON(ctx, http.MethodGet, "/auth/params?"+q.Encode(), nil, &out)
	if err != nil {
		return AuthParams{}, err
	}
	if out.Identifier == "" {
		out.Identifier = strings.TrimSpace(email)
	}
	return out, nil
}

// SignIn derives the server password and exchanges it for a session token.
// On success the client uses the new token for subsequent calls.
func (c *Client) SignIn(ctx context.Context, email, password string, mfa map[string]string) (SignInResult, error) {
	params, err := c.AuthParams(ctx, email, mfa)
	if err != nil {
		return SignInResult{}, err
	}
	keys, err := DeriveKeys(params, password)
	if err != nil {
		return SignInResult{}, err
	}
	body := map[string]any{
		"email":     strings.TrimSpace(email),
		"password":  keys.PW,
		"api":       APIVersion,
		"ephemeral": false,
	}
	for key, value := range mfa {
		body[key] = value
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/sign_in", body, &out); err != nil {
		return SignInResult{}, err
	}
	if out.Token == "" {
		return SignInResult{}, fmt.Errorf("sign in: response carried no token")
	}
	c.SetToken(out.Token)
	return SignInResult{Token: out.Token, Version: params.Version, Keys: keys}, nil
}

// DeriveKeys computes the account keys for the given protocol version.
func DeriveKeys(params AuthParams, password string) (Keys, error) {
	switch params.Version {
	case "002":
		if params.PwSalt == "" {
			return Keys{}, fmt.Errorf("protocol 002: missing pw_salt")
		}
		return pbkdf2Keys(password, params.PwSalt, params.PwCost)
	case "003":
		if params.PwNonce == "" {
			return Keys{}, fmt.Errorf("protocol 003: missing pw_nonce")
		}
		salt := saltFromNonce(params.Identifier, params.Version, params.PwCost, params.PwNonce)
		return pbkdf2Keys(password, salt, params.PwCost)
	case "004":
		if params.PwNonce == "" {
			return Keys{}, fmt.Errorf("protocol 004: missing pw_nonce")
		}
		return argon2Keys(password, params.Identifier, params.PwNonce)
	case "001":
		return Keys{}, fmt.Errorf("%w %s: resync the account from a current client", ErrUnsupportedVersion, params.Version)
	}
	return Keys{}, fmt.Errorf("%w %q", ErrUnsupportedVersion, params.Version)
}

func saltFromNonce(email, version string, cost int, nonce string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{email, "SF", version, strconv.Itoa(cost), nonce}, ":")))
	return hex.EncodeToString(sum[:])
}

func pbkdf2Keys(password, salt string, cost int) (Keys, error) {
	if cost <= 0 {
		return Keys{}, fmt.Errorf("invalid pw_cost %d", cost)
	}
	derived := hex.EncodeToString(pbkdf2.Key([]byte(password), []byte(salt), cost, passKeyLen, sha512.New))
	third := len(derived) / 3
	return Keys{
		PW: derived[:third],
		MK: derived[third : 2*third],
		AK: derived[2*third:],
	}, nil
}

func argon2Keys(password, email, nonce string) (Keys, error) {
	// The salt is the first 32 hex digits of the digest, i.e. its first 16 bytes.
	sum := sha256.Sum256([]byte(email + ":" + nonce))
	derived := hex.EncodeToString(argon2.IDKey([]byte(password), sum[:16], 5, 64*1024, 1, 64))
	return Keys{
		MK: derived[:64],
		PW: derived[64:],
	}, nil
}
