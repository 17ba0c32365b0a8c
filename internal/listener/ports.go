package listener

// RawMessage is a fetched message body with its mailbox UID.
type RawMessage struct {
	UID  uint32
	Body []byte
}

// Transport is the mail protocol client a Session drives. It is used from a
// single goroutine at a time.
type Transport interface {
	// SearchUnseen returns the UIDs of every message without the \Seen flag.
	SearchUnseen() ([]uint32, error)
	// Fetch returns the full raw content of the given messages, ordered by UID.
	Fetch(uids []uint32) ([]RawMessage, error)
	AddFlags(uid uint32, flags ...string) error
	RemoveFlags(uid uint32, flags ...string) error
	// Move reports ErrNoSuchMailbox when folder does not exist.
	Move(uid uint32, folder string) error
	CreateFolder(folder string) error
	// AddLabels reports ErrLabelsUnsupported when the server has no labels.
	AddLabels(uid uint32, labels ...string) error
	Append(folder string, flags []string, raw []byte) error

	// Idle blocks in push-notification mode until stop is closed or the
	// connection fails. Activity observed while idling is signalled on
	// Wake; signals are coalesced.
	Idle(stop <-chan struct{}) error
	Wake() <-chan struct{}

	Logout() error
}
