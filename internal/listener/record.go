package listener

import "fmt"

const (
	// NoSubject is used when a message carries no Subject header.
	NoSubject = "No Subject"
	// UnknownSender is used when the From header holds no usable address.
	UnknownSender = "UnknownEmail"
)

// Record is the content extracted from one message during a scrape cycle.
// Empty optional fields are omitted when the record is serialized.
type Record struct {
	UID         uint32   `json:"-"`
	From        string   `json:"-"`
	Subject     string   `json:"Subject"`
	PlainText   string   `json:"Plain_Text,omitempty"`
	PlainHTML   string   `json:"Plain_HTML,omitempty"`
	HTML        string   `json:"HTML,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// Key returns the identifier of the record within a result set.
func (r Record) Key() string {
	return RecordKey(r.UID, r.From)
}

// RecordKey builds the "<uid>_<sender>" identifier used in result sets.
func RecordKey(uid uint32, sender string) string {
	return fmt.Sprintf("%d_%s", uid, sender)
}

// ResultSet maps record keys to the records scraped in one cycle.
type ResultSet map[string]Record
