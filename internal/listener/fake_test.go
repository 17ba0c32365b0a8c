package listener

import (
	"fmt"
	"sort"
	"sync"

	"github.com/emersion/go-imap"
)

type fakeMessage struct {
	uid    uint32
	raw    string
	flags  map[string]bool
	labels []string
}

// fakeTransport is an in-memory mailbox with a single selected folder. It
// records every mutating call so tests can assert on ordering.
type fakeTransport struct {
	mu      sync.Mutex
	nextUID uint32
	folders map[string][]*fakeMessage
	calls   []string
	idling  bool
	wake    chan struct{}
	idled   chan struct{}

	noLabels   bool
	moveErr    error
	idleErr    error
	fetchErr   error
	loggedOut  bool
	idleStarts int
}

const fakeFolder = "INBOX"

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nextUID: 1,
		folders: map[string][]*fakeMessage{fakeFolder: nil},
		wake:    make(chan struct{}, 1),
		idled:   make(chan struct{}, 16),
	}
}

func newFakeSession() (*Session, *fakeTransport) {
	f := newFakeTransport()
	return NewSession(f, fakeFolder), f
}

// deliver adds an unseen message to the selected folder and, like a server
// pushing EXISTS, signals a listener that is idling.
func (f *fakeTransport) deliver(raw string) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	uid := f.nextUID
	f.nextUID++
	f.folders[fakeFolder] = append(f.folders[fakeFolder], &fakeMessage{
		uid:   uid,
		raw:   raw,
		flags: map[string]bool{},
	})

	if f.idling {
		select {
		case f.wake <- struct{}{}:
		default:
		}
	}
	return uid
}

func (f *fakeTransport) find(uid uint32) *fakeMessage {
	for _, m := range f.folders[fakeFolder] {
		if m.uid == uid {
			return m
		}
	}
	return nil
}

func (f *fakeTransport) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) folderUIDs(folder string) []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var uids []uint32
	for _, m := range f.folders[folder] {
		uids = append(uids, m.uid)
	}
	return uids
}

func (f *fakeTransport) SearchUnseen() ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var uids []uint32
	for _, m := range f.folders[fakeFolder] {
		if !m.flags[imap.SeenFlag] {
			uids = append(uids, m.uid)
		}
	}
	return uids, nil
}

func (f *fakeTransport) Fetch(uids []uint32) ([]RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	var msgs []RawMessage
	for _, uid := range uids {
		m := f.find(uid)
		if m == nil {
			continue
		}
		m.flags[imap.SeenFlag] = true
		msgs = append(msgs, RawMessage{UID: uid, Body: []byte(m.raw)})
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].UID < msgs[j].UID })
	return msgs, nil
}

func (f *fakeTransport) AddFlags(uid uint32, flags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("add-flags %d %v", uid, flags)
	if m := f.find(uid); m != nil {
		for _, fl := range flags {
			m.flags[fl] = true
		}
	}
	return nil
}

func (f *fakeTransport) RemoveFlags(uid uint32, flags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("remove-flags %d %v", uid, flags)
	if m := f.find(uid); m != nil {
		for _, fl := range flags {
			delete(m.flags, fl)
		}
	}
	return nil
}

func (f *fakeTransport) Move(uid uint32, folder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("move %d %s", uid, folder)
	if f.moveErr != nil {
		return f.moveErr
	}
	if _, ok := f.folders[folder]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchMailbox, folder)
	}

	src := f.folders[fakeFolder]
	for i, m := range src {
		if m.uid == uid {
			f.folders[fakeFolder] = append(src[:i:i], src[i+1:]...)
			f.folders[folder] = append(f.folders[folder], m)
			break
		}
	}
	return nil
}

func (f *fakeTransport) CreateFolder(folder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("create %s", folder)
	if _, ok := f.folders[folder]; ok {
		return fmt.Errorf("folder %s already exists", folder)
	}
	f.folders[folder] = nil
	return nil
}

func (f *fakeTransport) AddLabels(uid uint32, labels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("label %d %v", uid, labels)
	if f.noLabels {
		return ErrLabelsUnsupported
	}
	if m := f.find(uid); m != nil {
		m.labels = append(m.labels, labels...)
	}
	return nil
}

func (f *fakeTransport) Append(folder string, flags []string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("append %s %v", folder, flags)
	m := &fakeMessage{uid: f.nextUID, raw: string(raw), flags: map[string]bool{}}
	f.nextUID++
	for _, fl := range flags {
		m.flags[fl] = true
	}
	f.folders[folder] = append(f.folders[folder], m)
	return nil
}

func (f *fakeTransport) Idle(stop <-chan struct{}) error {
	f.mu.Lock()
	if f.idleErr != nil {
		err := f.idleErr
		f.mu.Unlock()
		return err
	}
	f.idling = true
	f.idleStarts++
	f.mu.Unlock()

	select {
	case f.idled <- struct{}{}:
	default:
	}

	<-stop

	f.mu.Lock()
	f.idling = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Wake() <-chan struct{} {
	return f.wake
}

func (f *fakeTransport) IdleStarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idleStarts
}

func (f *fakeTransport) IsIdling() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idling
}

func (f *fakeTransport) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loggedOut = true
	return nil
}
