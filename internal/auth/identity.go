package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Identity is the service-identity credential bundle: who the backend claims
// to be when it signs an assertion. Read-only input, injected at start-up.
type Identity struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"` // PEM, PKCS#1 or PKCS#8
	TokenURI    string `json:"token_uri"`
}

// ParseIdentity decodes a service-identity key file payload.
func ParseIdentity(data []byte) (Identity, error) {
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("decode identity file: %w", err)
	}
	if err := id.validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// LoadIdentity reads and parses the key file at path.
func LoadIdentity(path string) (Identity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, fmt.Errorf("read identity file: %w", err)
	}
	return ParseIdentity(b)
}

func (id Identity) validate() error {
	switch {
	case strings.TrimSpace(id.ClientEmail) == "":
		return fmt.Errorf("identity file missing client_email")
	case strings.TrimSpace(id.PrivateKey) == "":
		return fmt.Errorf("identity file missing private_key")
	case strings.TrimSpace(id.TokenURI) == "":
		return fmt.Errorf("identity file missing token_uri")
	}
	return nil
}
