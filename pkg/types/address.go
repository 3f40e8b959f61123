package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Address is the postal address snapshot stored as jsonb on orders and
// carried inside checkout sessions.
type Address struct {
	Name       string  `json:"name"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

const (
	maxAddressNameLen   = 120
	maxAddressLineLen   = 200
	maxAddressCityLen   = 100
	maxAddressStateLen  = 64
	maxAddressPostalLen = 20
	maxAddressPhoneLen  = 32
	defaultCountry      = "US"
)

// Sanitize trims every field, replaces control characters with spaces,
// collapses whitespace, caps field lengths and upper-cases state and country.
func (a Address) Sanitize() Address {
	out := Address{
		Name:       cleanField(a.Name, maxAddressNameLen),
		Line1:      cleanField(a.Line1, maxAddressLineLen),
		City:       cleanField(a.City, maxAddressCityLen),
		State:      strings.ToUpper(cleanField(a.State, maxAddressStateLen)),
		PostalCode: strings.ToUpper(cleanField(a.PostalCode, maxAddressPostalLen)),
		Country:    strings.ToUpper(cleanField(a.Country, 2)),
	}
	if out.Country == "" {
		out.Country = defaultCountry
	}
	if a.Line2 != nil {
		if line2 := cleanField(*a.Line2, maxAddressLineLen); line2 != "" {
			out.Line2 = &line2
		}
	}
	if a.Phone != nil {
		if phone := cleanField(*a.Phone, maxAddressPhoneLen); phone != "" {
			out.Phone = &phone
		}
	}
	return out
}

// MissingFields lists the json names of required fields that are empty.
func (a Address) MissingFields() []string {
	missing := []string{}
	required := []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// IsZero reports whether no address data was supplied.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Value marshals Address into its jsonb representation.
func (a Address) Value() (driver.Value, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal: %w", err)
	}
	return string(raw), nil
}

// Scan decodes the jsonb representation.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*a = Address{}
		return nil
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("address: unmarshal: %w", err)
	}
	return nil
}

func cleanField(value string, maxLen int) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
	collapsed := strings.Join(strings.Fields(mapped), " ")
	runes := []rune(collapsed)
	if len(runes) > maxLen {
		collapsed = strings.TrimSpace(string(runes[:maxLen]))
	}
	return collapsed
}
