// Copyright 2026 The tls13client Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package record defines the collaborator interfaces the handshake
// state machine drives: the record layer (framing, encryption,
// ChangeCipherSpec emission) and the transcript-hash engine. Per
// spec.md §1 these are out of scope for this module — only the
// interface the state machine calls against lives here; the in-memory
// test doubles are defined in the test files of the packages that use
// them.
package record

import "github.com/trustngotech/tls13client/internal/alert"

// HandshakeType identifies a TLS handshake message (RFC 8446 §4).
type HandshakeType uint8

const (
	TypeClientHello         HandshakeType = 1
	TypeServerHello         HandshakeType = 2
	TypeNewSessionTicket    HandshakeType = 4
	TypeEndOfEarlyData      HandshakeType = 5
	TypeEncryptedExtensions HandshakeType = 8
	TypeCertificate         HandshakeType = 11
	TypeCertificateRequest  HandshakeType = 13
	TypeCertificateVerify   HandshakeType = 15
	TypeFinished            HandshakeType = 20
	TypeKeyUpdate           HandshakeType = 24
	TypeMessageHash         HandshakeType = 254
)

func (t HandshakeType) String() string {
	switch t {
	case TypeClientHello:
		return "client_hello"
	case TypeServerHello:
		return "server_hello"
	case TypeNewSessionTicket:
		return "new_session_ticket"
	case TypeEndOfEarlyData:
		return "end_of_early_data"
	case TypeEncryptedExtensions:
		return "encrypted_extensions"
	case TypeCertificate:
		return "certificate"
	case TypeCertificateRequest:
		return "certificate_request"
	case TypeCertificateVerify:
		return "certificate_verify"
	case TypeFinished:
		return "finished"
	case TypeKeyUpdate:
		return "key_update"
	case TypeMessageHash:
		return "message_hash"
	default:
		return "unknown_handshake_type"
	}
}

// Transform is an opaque record-layer encryption/decryption context,
// installed on the connection at the key-schedule transition points
// named in spec.md §4.7. Its contents (AEAD, keys, IV, sequence
// number) are entirely the record layer's concern; the handshake
// engine only ever passes Transform values through.
type Transform interface {
	// Direction reports whether this transform protects inbound or
	// outbound traffic, for logging/debugging only.
	Direction() string
}

// Message is a decoded, still-encrypted-or-not handshake message as
// handed back by Layer.FetchHandshakeMessage: its on-the-wire type and
// body (the body excludes the 4-byte handshake header).
type Message struct {
	Type HandshakeType
	Body []byte
}

// Layer is the record-layer collaborator (spec.md §6, "downward,
// consumed"). The handshake engine never touches raw sockets; all
// suspension points are calls into Layer, which may return
// ErrWantIO to signal the caller must reinvoke Step after more I/O is
// possible.
type Layer interface {
	// FetchHandshakeMessage returns the next decoded handshake
	// message of the given type, or ErrWantIO if the full message
	// hasn't arrived yet. Passing a type value of 0 means "accept
	// whatever the next message's type is" (used
	// when a message could legitimately be one of several types,
	// e.g. Certificate vs CertificateRequest).
	FetchHandshakeMessage(expected HandshakeType) (Message, error)

	// StartMessage returns a buffer with spare capacity the caller
	// may write a handshake message body into (the header is added
	// by FinishMessage).
	StartMessage(t HandshakeType, capacity int) ([]byte, error)

	// FinishMessage frames and queues length bytes of the buffer
	// previously returned by StartMessage and dispatches it to the
	// wire (subject to ErrWantIO backpressure). It does not touch the
	// transcript hash; the handshake engine feeds each message to
	// TranscriptHash itself.
	FinishMessage(length int) error

	// SetInboundTransform installs t for all subsequently-received
	// records.
	SetInboundTransform(t Transform) error

	// SetOutboundTransform installs t for all subsequently-sent
	// records.
	SetOutboundTransform(t Transform) error

	// WriteChangeCipherSpec emits a single dummy ChangeCipherSpec
	// record, used only in middlebox-compatibility mode (spec.md
	// §4.7, §9 glossary).
	WriteChangeCipherSpec() error

	// PendFatalAlert queues a fatal alert of the given description to
	// be serialized on the next write, associated with the causing
	// error (for logging).
	PendFatalAlert(desc alert.Description, cause error)
}

// ErrWantIO is returned by Layer methods when the call would block on
// I/O; the caller must reinvoke the handshake Step once more data can
// be read or written.
var ErrWantIO = wantIOError{}

type wantIOError struct{}

func (wantIOError) Error() string { return "record: want_io" }

// TranscriptHash is the running-hash collaborator (spec.md §6).
// Exactly one instance exists per connection; HelloRetryRequest resets
// it to a synthetic "message_hash" per RFC 8446 §4.4.1 rather than
// restarting from scratch.
type TranscriptHash interface {
	// AddMessageHeader feeds the 4-byte handshake header for a
	// message of the given type and length.
	AddMessageHeader(t HandshakeType, length int)

	// AddBytes feeds raw handshake bytes (message body, or — during
	// PSK binder construction — a truncated ClientHello prefix; see
	// spec.md §4.5).
	AddBytes(b []byte)

	// Snapshot returns the current hash digest without finalizing
	// the running hash (Go's sha256/sha512 Sum expose this via
	// Sum(nil) on a cloned state, which a real implementation would
	// use — this interface just names the operation).
	Snapshot() []byte

	// ResetForHRR replaces the transcript with
	// message_hash(transcript-so-far), keeping the HRR message itself
	// to be hashed next, per RFC 8446 §4.4.1.
	ResetForHRR()

	// Size returns the hash's output length (32 for SHA-256, 48 for
	// SHA-384). PSK binders are sized from each PSK's own suite, not
	// from this value.
	Size() int
}
