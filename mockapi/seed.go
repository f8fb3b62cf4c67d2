package mockapi

import (
	"github.com/voluntree/client-go/docstore"
	"github.com/voluntree/client-go/users"
)

// Seed populates demo accounts and opportunities for offline
// development. It is idempotent: existing usernames are skipped.
func (s *Server) Seed() {
	demo := []users.Registration{
		{Username: "admin", Email: "admin@voluntree.dev", Password: "admin123!", Role: users.RoleAdmin},
		{Username: "greenearth", Email: "hello@greenearth.dev", Password: "plant123!", Role: users.RoleOrganization},
		{Username: "ada", Email: "ada@voluntree.dev", Password: "volunteer1!", Role: users.RoleVolunteer},
	}
	for _, reg := range demo {
		if _, exists := s.accountByUsername(reg.Username); exists {
			continue
		}
		if _, err := s.createAccount(reg); err != nil {
			s.logger.Warn().Err(err).Str("username", reg.Username).Msg("seed account skipped")
		}
	}

	if len(s.store.Table(TableOpportunities)) == 0 {
		s.store.Insert(TableOpportunities, docstore.Record{
			"title":        "Community garden planting day",
			"organization": "greenearth",
			"location":     "Riverside Park",
			"spots":        float64(12),
		})
		s.store.Insert(TableOpportunities, docstore.Record{
			"title":        "Food bank sorting shift",
			"organization": "greenearth",
			"location":     "Main St warehouse",
			"spots":        float64(6),
		})
	}
}

// ResetTokenFor returns the newest unused reset token recorded for
// email. Stands in for reading the reset email in demos and tests.
func (s *Server) ResetTokenFor(email string) (string, bool) {
	matches := s.store.Find(TableResetTokens, func(r docstore.Record) bool {
		return r["email"] == email && r["used"] != true
	})
	if len(matches) == 0 {
		return "", false
	}
	token, _ := matches[len(matches)-1]["token"].(string)
	return token, token != ""
}
