package config

import (
	"crypto/subtle"

	"github.com/AnTengye/contracthub/model"
	"golang.org/x/crypto/bcrypt"
)

// User is an entry of the configured user directory. Prefer PasswordHash
// (bcrypt); Password is accepted for local development.
type User struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	Role         string `yaml:"role"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

func (u *User) ParsedRole() (model.Role, bool) {
	return model.ParseRole(u.Role)
}

// Actor returns the identity the user acts as.
func (u *User) Actor() model.Actor {
	role, _ := u.ParsedRole()
	return model.Actor{ID: u.ID, Role: role}
}

// CheckPassword compares password against the stored hash or plain password.
func (u *User) CheckPassword(password string) bool {
	if u.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
	}
	if u.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1
}

// HashPassword returns a bcrypt hash suitable for password_hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// UsersByRole returns the users with role, or every user when role is empty.
func (c *Config) UsersByRole(role model.Role) []User {
	result := make([]User, 0, len(c.Users))
	for _, u := range c.Users {
		if r, _ := u.ParsedRole(); role == "" || r == role {
			result = append(result, u)
		}
	}
	return result
}

// IsReviewer reports whether id belongs to a configured reviewer.
func (c *Config) IsReviewer(id string) bool {
	u := c.FindUserByID(id)
	if u == nil {
		return false
	}
	role, ok := u.ParsedRole()
	return ok && role == model.RoleReviewer
}
