package alipay

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var ErrInvalidSignature = errors.New("alipay: invalid signature")

// SignContent builds the canonical string Alipay signs: all non-empty
// parameters except sign (and sign_type when excludeSignType is set), sorted by
// key and joined as k=v pairs with '&'.
func SignContent(values url.Values, excludeSignType bool) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "sign" || (excludeSignType && k == "sign_type") {
			continue
		}
		if values.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values.Get(k))
	}
	return b.String()
}

// SignRSA2 signs content with SHA256withRSA and returns base64.
func SignRSA2(content string, key *rsa.PrivateKey) (string, error) {
	sum := sha256.Sum256([]byte(content))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		return "", fmt.Errorf("alipay: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyRSA2 checks a base64 SHA256withRSA signature over content.
func VerifyRSA2(content, signature string, key *rsa.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	sum := sha256.Sum256([]byte(content))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, sum[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// ParsePrivateKey accepts PEM or the bare base64 body the Alipay console
// hands out, in PKCS#1 or PKCS#8 form.
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	der, err := decodeKey(raw)
	if err != nil {
		return nil, err
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("alipay: parse private key: %w", err)
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("alipay: private key is not RSA")
	}
	return k, nil
}

// ParsePublicKey accepts PEM or bare base64 PKIX (or PKCS#1) public keys.
func ParsePublicKey(raw string) (*rsa.PublicKey, error) {
	der, err := decodeKey(raw)
	if err != nil {
		return nil, err
	}
	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		k, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("alipay: public key is not RSA")
		}
		return k, nil
	}
	k, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("alipay: parse public key: %w", err)
	}
	return k, nil
}

func decodeKey(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errors.New("alipay: empty key")
	}
	if strings.Contains(s, "-----BEGIN") {
		block, _ := pem.Decode([]byte(s))
		if block == nil {
			return nil, errors.New("alipay: invalid PEM key")
		}
		return block.Bytes, nil
	}
	// Keys pasted into env files often carry literal \n or spaces.
	s = strings.NewReplacer(`\n`, "", "\n", "", "\r", "", " ", "").Replace(s)
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("alipay: decode key: %w", err)
	}
	return der, nil
}
