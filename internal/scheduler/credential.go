package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/quizgen/quizgen-api/internal/config"
)

// Provider selects the transport used for a credential.
type Provider string

// Supported providers.
const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Errors returned by CredentialPool mutations.
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrInvalidCredential  = errors.New("invalid credential")
)

// Credential is one language model API configuration. An empty Key keeps the
// entry in the pool but makes it unusable.
type Credential struct {
	Name      string   `json:"name"`
	Key       string   `json:"key"`
	Endpoint  string   `json:"endpoint"`
	Model     string   `json:"model"`
	MaxTokens int      `json:"max_tokens"`
	Provider  Provider `json:"provider"`
}

// Usable reports whether the credential has a key.
func (c Credential) Usable() bool {
	return strings.TrimSpace(c.Key) != ""
}

// Masked returns a copy whose key only reveals its last four characters.
func (c Credential) Masked() Credential {
	switch {
	case c.Key == "":
	case len(c.Key) <= 8:
		c.Key = "****"
	default:
		c.Key = "****" + c.Key[len(c.Key)-4:]
	}
	return c
}

// Validate checks the fields every provider needs.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCredential)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidCredential)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens cannot be negative", ErrInvalidCredential)
	}
	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.Endpoint) == "" {
			return fmt.Errorf("%w: endpoint is required for provider %s", ErrInvalidCredential, c.Provider)
		}
	case ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidCredential, c.Provider)
	}
	return nil
}

func normalize(c Credential) Credential {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	return c
}

// CredentialsFromConfig converts configured credentials.
func CredentialsFromConfig(cfgs []config.CredentialConfig) []Credential {
	creds := make([]Credential, 0, len(cfgs))
	for _, c := range cfgs {
		creds = append(creds, normalize(Credential{
			Name:      c.Name,
			Key:       c.APIKey,
			Endpoint:  c.Endpoint,
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
			Provider:  Provider(c.Provider),
		}))
	}
	return creds
}

// CredentialPool holds the credentials requests can be sent with. The settings
// API mutates it while the dispatcher reads it.
type CredentialPool struct {
	mu       sync.RWMutex
	creds    []Credential
	defaults []Credential
	next     int
}

// NewCredentialPool creates a pool. Reset restores creds.
func NewCredentialPool(creds []Credential) *CredentialPool {
	defaults := make([]Credential, 0, len(creds))
	for _, c := range creds {
		defaults = append(defaults, normalize(c))
	}
	p := &CredentialPool{defaults: defaults}
	p.creds = append([]Credential(nil), defaults...)
	return p
}

// List returns a copy of every credential, usable or not.
func (p *CredentialPool) List() []Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Credential(nil), p.creds...)
}

// Len returns the number of credentials.
func (p *CredentialPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.creds)
}

// Get returns the credential at index.
func (p *CredentialPool) Get(index int) (Credential, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.creds) {
		return Credential{}, false
	}
	return p.creds[index], true
}

// Add appends a credential and returns its index.
func (p *CredentialPool) Add(c Credential) (int, error) {
	c = normalize(c)
	if err := c.Validate(); err != nil {
		return -1, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = append(p.creds, c)
	return len(p.creds) - 1, nil
}

// Update replaces the credential at index. An empty Key in c keeps the stored
// key, so clients can edit a credential they only ever saw masked.
func (p *CredentialPool) Update(index int, c Credential) error {
	c = normalize(c)
	if err := c.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.creds) {
		return fmt.Errorf("%w: index %d", ErrCredentialNotFound, index)
	}
	if c.Key == "" {
		c.Key = p.creds[index].Key
	}
	p.creds[index] = c
	return nil
}

// Reset restores the credentials the pool was created with.
func (p *CredentialPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = append([]Credential(nil), p.defaults...)
	p.next = 0
}

// Next picks the credential for a request. A preferred index wins when it
// points at a usable credential; otherwise the round-robin pointer advances
// over usable credentials only. ok is false when no credential has a key.
func (p *CredentialPool) Next(preferred *int) (cred Credential, index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.creds)
	if preferred != nil && *preferred >= 0 && *preferred < n && p.creds[*preferred].Usable() {
		return p.creds[*preferred], *preferred, true
	}

	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if p.creds[idx].Usable() {
			p.next = (idx + 1) % n
			return p.creds[idx], idx, true
		}
	}
	return Credential{}, -1, false
}
