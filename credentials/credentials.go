// Package credentials decides which password a test identity logs in with.
package credentials

import "github.com/ONSdigital/dp-fileshare-steps/config"

const (
	AdminUser     = "admin"
	AdminPassword = "admin"
	TestPassword  = "123456"
)

// Policy maps user ids to the password they authenticate with. The admin
// account has its own password and every other account shares TestPassword.
type Policy struct {
	AdminUser     string
	AdminPassword string
	TestPassword  string
}

func Default() Policy {
	return Policy{
		AdminUser:     AdminUser,
		AdminPassword: AdminPassword,
		TestPassword:  TestPassword,
	}
}

// FromConfig builds a Policy from cfg, falling back to Default for empty values.
func FromConfig(cfg *config.Config) Policy {
	p := Default()
	if cfg == nil {
		return p
	}
	if cfg.AdminUser != "" {
		p.AdminUser = cfg.AdminUser
	}
	if cfg.AdminPassword != "" {
		p.AdminPassword = cfg.AdminPassword
	}
	if cfg.TestPassword != "" {
		p.TestPassword = cfg.TestPassword
	}
	return p
}

func (p Policy) IsAdmin(userID string) bool {
	return userID == p.AdminUser
}

// PasswordFor returns the password userID logs in with.
func (p Policy) PasswordFor(userID string) string {
	if p.IsAdmin(userID) {
		return p.AdminPassword
	}
	return p.TestPassword
}
