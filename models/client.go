package models

import "strings"

// ClientType is the classification tag of a client record.
type ClientType string

const (
	TypeRegular ClientType = "regular"
	TypeNuevo   ClientType = "nuevo"
	TypeVIP     ClientType = "vip"
)

// DefaultClientType is assumed for records stored without a type.
const DefaultClientType = TypeRegular

func ParseClientType(s string) (ClientType, bool) {
	switch ClientType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeRegular:
		return TypeRegular, true
	case TypeNuevo:
		return TypeNuevo, true
	case TypeVIP:
		return TypeVIP, true
	}
	return "", false
}

// Label is the display tag shown next to a client in lists.
func (t ClientType) Label() string {
	switch t {
	case TypeVIP:
		return "VIP"
	case TypeNuevo:
		return "NUEVO"
	default:
		return "REGULAR"
	}
}

// Client is a contact record. ID is zero until the store assigns one.
type Client struct {
	ID    uint       `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Phone string     `json:"phone"`
	Type  ClientType `json:"type,omitempty"`
}

// clientRow is the persisted shape of a Client.
type clientRow struct {
	ID    uint    `gorm:"primaryKey;autoIncrement"`
	Name  string  `gorm:"not null;index:idx_clients_name"`
	Email string  `gorm:"not null;uniqueIndex:idx_clients_email"`
	Phone string  `gorm:"not null"`
	Type  *string `gorm:"size:16"`
}

func (clientRow) TableName() string { return "clients" }

func toRow(c Client) clientRow {
	row := clientRow{
		ID:    c.ID,
		Name:  c.Name,
		Email: c.Email,
		Phone: c.Phone,
	}
	if c.Type != "" {
		t := strings.ToLower(strings.TrimSpace(string(c.Type)))
		if parsed, ok := ParseClientType(t); ok {
			t = string(parsed)
		}
		row.Type = &t
	}
	return row
}

// fromRow is the only place where a missing type becomes DefaultClientType.
// The stored row is left untouched.
func fromRow(row clientRow) Client {
	c := Client{
		ID:    row.ID,
		Name:  row.Name,
		Email: row.Email,
		Phone: row.Phone,
		Type:  DefaultClientType,
	}
	if row.Type != nil && *row.Type != "" {
		c.Type = ClientType(*row.Type)
	}
	return c
}
