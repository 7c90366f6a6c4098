// Package render turns a list of clients into something a person can read.
package render

import (
	"io"

	"crm-clients/models"
)

const EmptyMessage = "No results found."

// View is what every renderer draws: the visible clients and the badge count.
type View struct {
	Clients []models.Client `json:"clients"`
	Count   int             `json:"count"`
}

func NewView(clients []models.Client) View {
	if clients == nil {
		clients = []models.Client{}
	}
	return View{Clients: clients, Count: len(clients)}
}

// Row is the per-client projection shared by the renderers.
type Row struct {
	ID    uint
	Name  string
	Type  models.ClientType
	Label string
	Email string
	Phone string
}

func Rows(v View) []Row {
	rows := make([]Row, 0, len(v.Clients))
	for _, c := range v.Clients {
		rows = append(rows, Row{
			ID:    c.ID,
			Name:  c.Name,
			Type:  c.Type,
			Label: c.Type.Label(),
			Email: c.Email,
			Phone: c.Phone,
		})
	}
	return rows
}

type Renderer interface {
	Render(w io.Writer, v View) error
}
