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

// Package handshake implements the client-side TLS 1.3 handshake state
// machine (C6) and its post-handshake follow-on (C7): it sequences
// message production and consumption, triggers key-schedule
// transitions at the points RFC 8446 requires, and installs
// record-layer transforms. Everything below it (wire codec,
// extensions, PSK selection, the ServerHello classifier, the key
// schedule, key exchange) is a collaborator this package drives.
package handshake

import (
	"io"

	"go.uber.org/zap"

	"github.com/trustngotech/tls13client/internal/kex"
	"github.com/trustngotech/tls13client/internal/keyschedule"
	"github.com/trustngotech/tls13client/internal/psk"
)

// CipherSuite bundles a TLS 1.3 cipher suite's wire ID and the key
// schedule hash it drives.
type CipherSuite struct {
	ID    uint16
	Suite keyschedule.Suite
}

var (
	// SuiteAES128GCMSHA256 is TLS_AES_128_GCM_SHA256 (0x1301).
	SuiteAES128GCMSHA256 = CipherSuite{ID: 0x1301, Suite: keyschedule.SHA256}
	// SuiteAES256GCMSHA384 is TLS_AES_256_GCM_SHA384 (0x1302).
	SuiteAES256GCMSHA384 = CipherSuite{ID: 0x1302, Suite: keyschedule.SHA384}
	// SuiteChaCha20Poly1305SHA256 is TLS_CHACHA20_POLY1305_SHA256 (0x1303).
	SuiteChaCha20Poly1305SHA256 = CipherSuite{ID: 0x1303, Suite: keyschedule.SHA256}
)

// PSKExchangeModes are the locally enabled PSK key-exchange modes
// (spec.md §3: "enabled PSK key-exchange modes (subset of
// {pure-PSK, PSK+ECDHE, ephemeral-only})"). Ephemeral-only is implicit
// whenever at least one Group is configured and is not itself a flag
// here.
type PSKExchangeModes struct {
	PSKKEEnabled    bool // pure-PSK, no (EC)DHE
	PSKDHEKEEnabled bool // PSK combined with (EC)DHE
}

// ClientCredentials is the opaque client-authentication collaborator
// (spec.md §1: "certificate selection and the Certificate/
// CertificateVerify message encoders are invoked as opaque
// sub-steps"). A nil Credentials means the client never authenticates;
// CertificateRequest is then answered with an empty Certificate.
type ClientCredentials interface {
	// CertificateMessageBody returns the already-encoded body of the
	// Certificate message (RFC 8446 §4.4.2) for the given
	// certificate_request_context.
	CertificateMessageBody(requestContext []byte) ([]byte, error)
	// SignCertificateVerify signs the CertificateVerify content (RFC
	// 8446 §4.4.3) over the given transcript hash, returning the
	// already-encoded CertificateVerify message body.
	SignCertificateVerify(transcriptHash []byte) ([]byte, error)
}

// ServerAuth is the opaque server-authentication collaborator: chain
// validation and CertificateVerify signature verification (spec.md §1
// scopes both out of the core).
type ServerAuth interface {
	// VerifyCertificateChain validates the server's Certificate
	// message body against the configured trust anchors.
	VerifyCertificateChain(certMsgBody []byte, serverName string) error
	// VerifyCertificateVerify checks the server's CertificateVerify
	// signature over the given transcript hash against the chain
	// VerifyCertificateChain last validated.
	VerifyCertificateVerify(certVerifyMsgBody []byte, transcriptHash []byte) error
}

// Config is the read-only connection configuration a Machine borrows
// for the lifetime of the handshake (spec.md §9: "model as a borrow
// for the lifetime of the handshake, never as shared ownership").
type Config struct {
	MinTLSVersion uint16 // e.g. 0x0301
	MaxTLSVersion uint16 // always 0x0304 for this engine

	ServerName string
	ALPN       []string

	CipherSuites  []CipherSuite
	Groups        []kex.Group
	SignatureAlgs []uint16 // SignatureScheme values offered in ClientHello
	PSKModes      PSKExchangeModes

	ResumptionTicket *psk.Ticket
	ExternalPSK      *psk.ExternalPSK

	EarlyDataEnabled bool

	Credentials ClientCredentials
	ServerAuth  ServerAuth

	// MiddleboxCompat enables the dummy ChangeCipherSpec records
	// described in spec.md §4.7 and the glossary.
	MiddleboxCompat bool

	// Rand is the randomness source for ClientHello.random and the
	// middlebox-compat legacy_session_id; defaults to crypto/rand.Reader.
	// Key-share generation draws from kex.Rand instead.
	Rand io.Reader

	// NowUnixSecs, if set, supplies wall-clock seconds for ticket-age
	// computations (spec.md §6: "Clock ... optional").
	NowUnixSecs func() (secs int64, ok bool)

	// Logger receives debug-level tracing of state transitions,
	// matching caddyserver-caddy's nil-safe *zap.Logger field
	// convention; a nil Logger is treated as zap.NewNop().
	Logger *zap.Logger
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// EarlyDataStatus is the tri-state early-data outcome tracked on the
// negotiated session (SPEC_FULL.md supplement: spec.md §4.4/§4.7 only
// ever say "accepted", leaving "never offered" vs "offered but
// rejected" ambiguous otherwise).
type EarlyDataStatus int

const (
	EarlyDataNotOffered EarlyDataStatus = iota
	EarlyDataOffered
	EarlyDataAccepted
)

func (s EarlyDataStatus) String() string {
	switch s {
	case EarlyDataNotOffered:
		return "not_offered"
	case EarlyDataOffered:
		return "offered"
	case EarlyDataAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// KeyExchangeMode is the finalized mode named in spec.md §3.
type KeyExchangeMode int

const (
	ModeUnknown KeyExchangeMode = iota
	ModePSK
	ModeEphemeral
	ModePSKEphemeral
)

func (m KeyExchangeMode) String() string {
	switch m {
	case ModePSK:
		return "psk"
	case ModeEphemeral:
		return "ephemeral"
	case ModePSKEphemeral:
		return "psk_ephemeral"
	default:
		return "unknown"
	}
}

// Session is the negotiated-session record that survives the
// handshake (spec.md §3 "Negotiated session").
type Session struct {
	TLSVersion  uint16
	CipherSuite CipherSuite

	NegotiatedALPN string
	EarlyData      EarlyDataStatus

	Ticket                 *psk.Ticket
	ResumptionMasterSecret []byte

	ClientApplicationTrafficSecret []byte
	ServerApplicationTrafficSecret []byte
}
