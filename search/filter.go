package search

import (
	"strings"

	"crm-clients/models"
)

// Filter returns the clients whose name, email, phone or type contain query.
// Name, email and type compare case-insensitively, phone as stored.
// An empty query matches everything. The input slice is not modified.
func Filter(clients []models.Client, query string) []models.Client {
	term := strings.ToLower(query)
	out := make([]models.Client, 0, len(clients))
	for _, c := range clients {
		if matches(c, term) {
			out = append(out, c)
		}
	}
	return out
}

func matches(c models.Client, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Name), term) ||
		strings.Contains(strings.ToLower(c.Email), term) ||
		strings.Contains(c.Phone, term) ||
		(c.Type != "" && strings.Contains(strings.ToLower(string(c.Type)), term))
}
