// Package auth hashes and verifies account passcodes.
//
// A passcode is stored as a SCRAM-SHA-256 verifier in the RFC 5803 text
// form that PostgreSQL also uses:
//
//	SCRAM-SHA-256$<iterations>:<salt>$<StoredKey>:<ServerKey>
//
// with base64 salt and keys. Verification derives the keys again from the
// stored salt and iteration count.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xdg-go/scram"
)

// MinIterations is the lowest PBKDF2 iteration count accepted by Hash.
const MinIterations = 4096

const (
	scheme  = "SCRAM-SHA-256"
	saltLen = 16
)

var (
	ErrEmptyPassword   = errors.New("password must be non-empty")
	ErrInvalidPassword = errors.New("password contains characters that are not allowed")
	ErrMalformedHash   = errors.New("malformed password hash")
	ErrPasswordInvalid = errors.New("invalid credentials")
)

var b64 = base64.StdEncoding

// verifier is the parsed form of a stored hash.
type verifier struct {
	iters     int
	salt      []byte
	storedKey []byte
	serverKey []byte
}

func (v verifier) String() string {
	return scheme + "$" + strconv.Itoa(v.iters) + ":" + b64.EncodeToString(v.salt) +
		"$" + b64.EncodeToString(v.storedKey) + ":" + b64.EncodeToString(v.serverKey)
}

func parseVerifier(s string) (verifier, error) {
	rest, ok := strings.CutPrefix(s, scheme+"$")
	if !ok {
		return verifier{}, ErrMalformedHash
	}
	params, keys, ok := strings.Cut(rest, "$")
	if !ok {
		return verifier{}, ErrMalformedHash
	}
	itersText, saltText, ok1 := strings.Cut(params, ":")
	storedText, serverText, ok2 := strings.Cut(keys, ":")
	if !ok1 || !ok2 {
		return verifier{}, ErrMalformedHash
	}

	var v verifier
	var err error
	if v.iters, err = strconv.Atoi(itersText); err != nil || v.iters <= 0 {
		return verifier{}, ErrMalformedHash
	}
	for _, f := range []struct {
		text string
		dst  *[]byte
	}{{saltText, &v.salt}, {storedText, &v.storedKey}, {serverText, &v.serverKey}} {
		if *f.dst, err = b64.DecodeString(f.text); err != nil || len(*f.dst) == 0 {
			return verifier{}, ErrMalformedHash
		}
	}
	return v, nil
}

// derive computes the verifier of pass. scram normalizes pass with
// SASLprep first; prohibited input yields ErrInvalidPassword.
func derive(pass string, salt []byte, iters int) (verifier, error) {
	client, err := scram.SHA256.NewClient("user", pass, "")
	if err != nil {
		// The scram error quotes the passcode, so it is not wrapped.
		return verifier{}, ErrInvalidPassword
	}
	creds := client.GetStoredCredentials(scram.KeyFactors{Salt: string(salt), Iters: iters})
	return verifier{
		iters:     iters,
		salt:      salt,
		storedKey: creds.StoredKey,
		serverKey: creds.ServerKey,
	}, nil
}

// Hasher creates and checks SCRAM-SHA-256 verifiers.
type Hasher struct {
	iters int
}

// NewHasher returns a Hasher deriving new verifiers with iters PBKDF2 iterations.
func NewHasher(iters int) *Hasher {
	return &Hasher{iters: iters}
}

// Hash returns the verifier string of pass under a fresh random salt.
func (h *Hasher) Hash(pass string) (string, error) {
	if pass == "" {
		return "", ErrEmptyPassword
	}
	if h.iters < MinIterations {
		return "", fmt.Errorf("iterations (%d) below minimum %d", h.iters, MinIterations)
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("creating random salt: %w", err)
	}
	v, err := derive(pass, salt, h.iters)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Verify checks pass against a stored verifier using the verifier's own
// salt and iteration count. Any mismatch returns ErrPasswordInvalid; a
// passcode SASLprep rejects also matches ErrInvalidPassword.
func (h *Hasher) Verify(pass, stored string) error {
	want, err := parseVerifier(stored)
	if err != nil {
		return err
	}
	if pass == "" {
		return ErrPasswordInvalid
	}
	got, err := derive(pass, want.salt, want.iters)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordInvalid, err)
	}
	storedOK := subtle.ConstantTimeCompare(got.storedKey, want.storedKey)
	serverOK := subtle.ConstantTimeCompare(got.serverKey, want.serverKey)
	if storedOK&serverOK != 1 {
		return ErrPasswordInvalid
	}
	return nil
}
