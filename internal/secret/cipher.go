// Package secret is the seam for credential encryption at rest. The
// mechanics live outside this system; storage only ever sees ciphertext
// and callers decrypt on use.
package secret

import (
	"encoding/base64"
	"fmt"
)

// Cipher encrypts and decrypts opaque credential strings.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Passthrough is the default Cipher when no external provider is wired:
// reversible base64, no confidentiality. Deployments supply a real Cipher.
type Passthrough struct{}

func (Passthrough) Encrypt(plaintext string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (Passthrough) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding credential: %w", err)
	}
	return string(data), nil
}
