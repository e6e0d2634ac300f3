package devidp

import (
	"bytes"
	_ "embed"
	"io"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/jrsteele09/synchub/oauthmodel"
)

//go:embed seed.yaml
var defaultSeed []byte

var (
	ErrUnknownClient      = errors.New("unknown client")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Client is a registered public client. There are no secrets; PKCE is mandatory.
type Client struct {
	ID           string   `yaml:"id"`
	Description  string   `yaml:"description"`
	RedirectURIs []string `yaml:"redirect_uris"`
	LogoutURIs   []string `yaml:"logout_uris"`
	Scopes       []string `yaml:"scopes"`
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ValidateScopes checks a space separated scope string against the client.
func (c *Client) ValidateScopes(requested string) error {
	for _, scope := range strings.Fields(requested) {
		if !c.HasScope(scope) {
			return errors.Wrapf(oauthmodel.ErrInvalidScope, "scope %q not allowed", scope)
		}
	}
	return nil
}

// User is a seeded account. PasswordHash is a bcrypt hash; Password is a
// plaintext convenience for seed files and is hashed on load.
type User struct {
	Sub          string   `yaml:"sub"`
	Email        string   `yaml:"email"`
	Password     string   `yaml:"password,omitempty"`
	PasswordHash string   `yaml:"password_hash,omitempty"`
	TenantID     string   `yaml:"tenant_id"`
	IsAdmin      bool     `yaml:"is_admin"`
	Groups       []string `yaml:"groups"`
}

// Seed is the YAML document the directory loads.
type Seed struct {
	Clients []Client `yaml:"clients"`
	Users   []User   `yaml:"users"`
}

// Directory holds the clients and users the provider knows. It is read-only
// after load.
type Directory struct {
	clients map[string]Client
	users   map[string]User
}

// DefaultDirectory loads the embedded seed.
func DefaultDirectory() (*Directory, error) {
	return LoadDirectory(bytes.NewReader(defaultSeed))
}

// LoadDirectory parses a YAML seed and hashes any plaintext passwords.
func LoadDirectory(r io.Reader) (*Directory, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "failed to decode seed")
	}
	return NewDirectory(seed)
}

func NewDirectory(seed Seed) (*Directory, error) {
	d := &Directory{
		clients: make(map[string]Client, len(seed.Clients)),
		users:   make(map[string]User, len(seed.Users)),
	}

	for _, c := range seed.Clients {
		if c.ID == "" {
			return nil, errors.New("client id is required")
		}
		if len(c.RedirectURIs) == 0 {
			return nil, errors.Errorf("client %s has no redirect uris", c.ID)
		}
		if len(c.Scopes) == 0 {
			c.Scopes = oauthmodel.DefaultScopes
		}
		d.clients[c.ID] = c
	}

	for _, u := range seed.Users {
		if u.Email == "" || u.Sub == "" {
			return nil, errors.New("user email and sub are required")
		}
		if u.PasswordHash == "" {
			if u.Password == "" {
				return nil, errors.Errorf("user %s has no password", u.Email)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to hash password for %s", u.Email)
			}
			u.PasswordHash = string(hash)
		}
		u.Password = ""
		d.users[strings.ToLower(u.Email)] = u
	}
	return d, nil
}

// Client looks up a registered client.
func (d *Directory) Client(id string) (Client, error) {
	c, ok := d.clients[id]
	if !ok {
		return Client{}, ErrUnknownClient
	}
	return c, nil
}

// Authenticate checks a password against the stored bcrypt hash.
func (d *Directory) Authenticate(email, password string) (User, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// User returns the user with subject sub.
func (d *Directory) User(sub string) (User, bool) {
	for _, u := range d.users {
		if u.Sub == sub {
			return u, true
		}
	}
	return User{}, false
}
