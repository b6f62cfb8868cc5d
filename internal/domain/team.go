package domain

import (
	"fmt"
	"regexp"
	"time"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Team owns documents, requests and records. Slug routes result links.
type Team struct {
	ID           string
	Slug         string
	Name         string
	OpenAIAPIKey string
	CreatedAt    time.Time
}

// User is the requester notified when research completes.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Credentials carry the model key and model name used for one request.
// They format as redacted so they never leak into logs or errors.
type Credentials struct {
	APIKey string
	Model  string
}

// IsZero reports whether no API key is present.
func (c Credentials) IsZero() bool {
	return c.APIKey == ""
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{model=%s, key=[redacted]}", c.Model)
}

func (c Credentials) GoString() string {
	return c.String()
}

// ValidateTeam validates a Team instance
func ValidateTeam(t *Team) error {
	if t == nil {
		return fmt.Errorf("team cannot be nil")
	}

	if t.ID == "" {
		return fmt.Errorf("team ID is required")
	}

	if !slugPattern.MatchString(t.Slug) {
		return fmt.Errorf("team Slug is invalid: %q", t.Slug)
	}

	return nil
}

// ValidateUser validates a User instance
func ValidateUser(u *User) error {
	if u == nil {
		return fmt.Errorf("user cannot be nil")
	}

	if u.ID == "" {
		return fmt.Errorf("user ID is required")
	}

	if u.Email == "" {
		return fmt.Errorf("user Email is required")
	}

	return nil
}
