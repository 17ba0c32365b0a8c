package listener

import "errors"

var (
	// ErrNotConnected is returned by any mailbox operation issued on a
	// session that has not logged in, or has already logged out.
	ErrNotConnected = errors.New("mailbox session is not connected")

	// ErrInvalidTimeoutKind is returned when a timeout is neither a number of
	// minutes nor an [hour, minute] pair.
	ErrInvalidTimeoutKind = errors.New("timeout must be either a number of minutes or an [hour, minute] pair")

	// ErrMailboxOperation wraps a failed flag, move, folder or label operation.
	ErrMailboxOperation = errors.New("mailbox operation failed")

	// ErrExtraction wraps malformed MIME content and attachment write failures.
	ErrExtraction = errors.New("message extraction failed")

	// ErrNoSuchMailbox is reported by a transport when the destination of a
	// move does not exist.
	ErrNoSuchMailbox = errors.New("no such mailbox")

	// ErrLabelsUnsupported is reported when the server has no label
	// extension, so soft delete cannot be applied.
	ErrLabelsUnsupported = errors.New("server does not support message labels")

	// ErrAttachmentExists is returned under the fail collision policy.
	ErrAttachmentExists = errors.New("attachment file already exists")
)
