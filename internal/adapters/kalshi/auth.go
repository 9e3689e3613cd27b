package kalshi

// auth.go — firma de requests de la API de Kalshi.
//
// Cada request autenticado lleva tres headers:
//   KALSHI-ACCESS-KEY:       el key ID de la cuenta
//   KALSHI-ACCESS-TIMESTAMP: epoch millis del request
//   KALSHI-ACCESS-SIGNATURE: RSA-PSS SHA-256 de "{ts}{METHOD}{path}"
//
// El path firmado no incluye query string.
// Referencia: https://docs.kalshi.com/getting_started/api_keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer firma requests con la private key RSA de la cuenta.
// Un Signer nil significa modo read-only: solo endpoints públicos.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewSigner parsea la private key en PEM. Con PEM vacío devuelve (nil, nil):
// el cliente queda en modo read-only sin error.
func NewSigner(keyID, pemData string) (*Signer, error) {
	if pemData == "" {
		return nil, nil
	}
	// Las env vars suelen llevar los saltos de línea escapados.
	pemData = strings.ReplaceAll(pemData, `\n`, "\n")

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("kalshi.NewSigner: PEM inválido")
	}

	var key *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("kalshi.NewSigner: la key no es RSA")
		}
		key = rsaKey
	} else if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = rsaKey
	} else {
		return nil, fmt.Errorf("kalshi.NewSigner: parse private key: %w", err)
	}

	return &Signer{keyID: keyID, key: key}, nil
}

// Headers genera los tres headers de auth para un request.
func (s *Signer) Headers(method, path string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	msg := []byte(ts + strings.ToUpper(method) + path)
	digest := sha256.Sum256(msg)

	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil, fmt.Errorf("kalshi.Signer.Headers: sign: %w", err)
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       s.keyID,
		"KALSHI-ACCESS-TIMESTAMP": ts,
		"KALSHI-ACCESS-SIGNATURE": base64.StdEncoding.EncodeToString(sig),
	}, nil
}
