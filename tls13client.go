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

// Package tls13client is a from-scratch client-side TLS 1.3 handshake
// engine (RFC 8446). It implements the handshake state machine, wire
// codec, extension encoders/parsers, PSK/ticket selection, and the
// post-handshake NewSessionTicket/KeyUpdate flow; it does not ship a
// record layer, socket transport, or certificate validator — those are
// supplied by the embedding application through the Layer,
// TranscriptHash, Credentials and ServerAuth collaborator interfaces
// (see internal/record and internal/handshake).
package tls13client

import (
	"go.uber.org/zap"

	"github.com/trustngotech/tls13client/internal/handshake"
	"github.com/trustngotech/tls13client/internal/kex"
	"github.com/trustngotech/tls13client/internal/psk"
	"github.com/trustngotech/tls13client/internal/record"
)

// Re-exported so callers configuring a Conn never need to import the
// internal packages directly (spec.md §6's "upward" surface).
type (
	// CipherSuite bundles a TLS 1.3 cipher suite's wire ID and the key
	// schedule hash it drives.
	CipherSuite = handshake.CipherSuite
	// PSKExchangeModes are the locally enabled PSK key-exchange modes.
	PSKExchangeModes = handshake.PSKExchangeModes
	// ClientCredentials is the client-authentication collaborator.
	ClientCredentials = handshake.ClientCredentials
	// ServerAuth is the server-authentication collaborator.
	ServerAuth = handshake.ServerAuth
	// Session is the negotiated-session record produced by a completed
	// handshake.
	Session = handshake.Session
	// Result is the non-fatal outcome of one Step call.
	Result = handshake.Result
	// Ticket is a previously-stored resumption session.
	Ticket = psk.Ticket
	// ExternalPSK is a statically configured out-of-band PSK.
	ExternalPSK = psk.ExternalPSK
	// Group is a key-exchange group implementation.
	Group = kex.Group
	// Layer is the record-layer collaborator the Conn drives.
	Layer = record.Layer
	// TranscriptHash is the running transcript-hash collaborator.
	TranscriptHash = record.TranscriptHash
)

const (
	ResultOK                       = handshake.ResultOK
	ResultWantIO                   = handshake.ResultWantIO
	ResultDowngradeHandoff         = handshake.ResultDowngradeHandoff
	ResultHandshakeComplete        = handshake.ResultHandshakeComplete
	ResultReceivedNewSessionTicket = handshake.ResultReceivedNewSessionTicket
	ResultReceivedKeyUpdate        = handshake.ResultReceivedKeyUpdate
)

var (
	// SuiteAES128GCMSHA256 is TLS_AES_128_GCM_SHA256 (0x1301).
	SuiteAES128GCMSHA256 = handshake.SuiteAES128GCMSHA256
	// SuiteAES256GCMSHA384 is TLS_AES_256_GCM_SHA384 (0x1302).
	SuiteAES256GCMSHA384 = handshake.SuiteAES256GCMSHA384
	// SuiteChaCha20Poly1305SHA256 is TLS_CHACHA20_POLY1305_SHA256 (0x1303).
	SuiteChaCha20Poly1305SHA256 = handshake.SuiteChaCha20Poly1305SHA256

	// DefaultGroups is the set of key-exchange groups this engine
	// offers when Config.Groups is left unset, X25519 first (see
	// internal/kex.Default).
	DefaultGroups = kex.Default

	// DefaultCipherSuites is the set of cipher suites this engine
	// offers when Config.CipherSuites is left unset.
	DefaultCipherSuites = []CipherSuite{
		SuiteAES128GCMSHA256,
		SuiteChaCha20Poly1305SHA256,
		SuiteAES256GCMSHA384,
	}

	// DefaultSignatureAlgorithms is offered in signature_algorithms
	// when Config.SignatureAlgs is left unset: ECDSA-P256-SHA256,
	// Ed25519, then the RSA-PSS schemes, matching a conservative,
	// widely-interoperable modern default.
	DefaultSignatureAlgorithms = []uint16{
		0x0403, // ecdsa_secp256r1_sha256
		0x0807, // ed25519
		0x0804, // rsa_pss_rsae_sha256
		0x0805, // rsa_pss_rsae_sha384
		0x0806, // rsa_pss_rsae_sha512
	}
)

// Config is the caller-populated connection configuration (spec.md §9:
// "model as a borrow for the lifetime of the handshake"). Construct it
// directly and pass it to NewConn; defaults are filled in by NewConn
// for any zero-valued field that has one.
type Config struct {
	// ServerName is the value placed in the server_name extension
	// (SNI) and passed to ServerAuth.VerifyCertificateChain.
	ServerName string
	// ALPN lists application protocols to offer, most preferred first.
	ALPN []string

	// MinTLSVersion/MaxTLSVersion bound the versions advertised in
	// supported_versions. Both default to {0x0303, 0x0304} (TLS 1.2
	// legacy_version floor, TLS 1.3 ceiling) if left zero.
	MinTLSVersion uint16
	MaxTLSVersion uint16

	// CipherSuites, Groups and SignatureAlgs default to
	// DefaultCipherSuites / DefaultGroups / DefaultSignatureAlgorithms
	// when left nil.
	CipherSuites  []CipherSuite
	Groups        []Group
	SignatureAlgs []uint16
	PSKModes      PSKExchangeModes

	// ResumptionTicket, if set, is offered as a PSK identity alongside
	// ExternalPSK (in that order), subject to PSKModes and the
	// ticket's own AllowsMode.
	ResumptionTicket *Ticket
	ExternalPSK      *ExternalPSK

	// EarlyDataEnabled allows 0-RTT data to be offered when the first
	// offered PSK is a resumption ticket that permits it
	// (Ticket.AllowEarlyData).
	EarlyDataEnabled bool

	// Credentials, if set, enables client certificate authentication
	// in response to a CertificateRequest. A nil Credentials answers
	// CertificateRequest with an empty Certificate.
	Credentials ClientCredentials
	// ServerAuth, if set, validates the server's certificate chain and
	// CertificateVerify signature. A nil ServerAuth treats the server
	// Certificate message as opaque (the embedder is expected to
	// perform its own validation out of band, or this is a test/proxy
	// configuration that does not need it).
	ServerAuth ServerAuth

	// MiddleboxCompat enables the dummy ChangeCipherSpec records
	// described in RFC 8446 Appendix D.4.
	MiddleboxCompat bool

	// NowUnixSecs, if set, supplies wall-clock seconds for ticket-age
	// computations.
	NowUnixSecs func() (secs int64, ok bool)

	// Logger receives debug-level tracing of state transitions; nil
	// defaults to zap.NewNop().
	Logger *zap.Logger
}

// Conn drives one client-side TLS 1.3 handshake (and its
// post-handshake follow-on) over a caller-supplied record Layer. It is
// the public façade over internal/handshake.Machine; it exists so
// embedders never need to import internal packages.
type Conn struct {
	m *handshake.Machine
}

// NewConn constructs a Conn ready to begin the handshake by sending a
// ClientHello on the first Step call. layer and trans are the
// record-layer and transcript-hash collaborators for this connection
// (out of scope for this module per spec.md §1); cfg's fields are
// copied into the handshake configuration, but slice, pointer and
// interface fields still share their backing data with the caller,
// which the Conn borrows for the handshake's lifetime.
func NewConn(cfg Config, layer Layer, trans TranscriptHash) *Conn {
	hcfg := &handshake.Config{
		MinTLSVersion:    cfg.MinTLSVersion,
		MaxTLSVersion:    cfg.MaxTLSVersion,
		ServerName:       cfg.ServerName,
		ALPN:             cfg.ALPN,
		CipherSuites:     cfg.CipherSuites,
		Groups:           cfg.Groups,
		SignatureAlgs:    cfg.SignatureAlgs,
		PSKModes:         cfg.PSKModes,
		ResumptionTicket: cfg.ResumptionTicket,
		ExternalPSK:      cfg.ExternalPSK,
		EarlyDataEnabled: cfg.EarlyDataEnabled,
		Credentials:      cfg.Credentials,
		ServerAuth:       cfg.ServerAuth,
		MiddleboxCompat:  cfg.MiddleboxCompat,
		NowUnixSecs:      cfg.NowUnixSecs,
		Logger:           cfg.Logger,
	}
	if hcfg.MinTLSVersion == 0 {
		hcfg.MinTLSVersion = 0x0303
	}
	if hcfg.MaxTLSVersion == 0 {
		hcfg.MaxTLSVersion = 0x0304
	}
	if len(hcfg.CipherSuites) == 0 {
		hcfg.CipherSuites = DefaultCipherSuites
	}
	if len(hcfg.Groups) == 0 {
		hcfg.Groups = DefaultGroups
	}
	if len(hcfg.SignatureAlgs) == 0 {
		hcfg.SignatureAlgs = DefaultSignatureAlgorithms
	}
	return &Conn{m: handshake.New(hcfg, layer, trans)}
}

// Step advances the handshake (or, once complete, processes one
// post-handshake message) as far as it can without blocking. Callers
// reinvoke Step after more I/O is possible whenever it returns
// ResultWantIO; any other error is fatal and the Conn must not be
// stepped again.
func (c *Conn) Step() (Result, error) {
	return c.m.Step()
}

// Session returns the negotiated session accumulated so far. Fields
// are only meaningful once the corresponding handshake phase has
// completed; callers should wait for ResultHandshakeComplete before
// trusting the application traffic secrets.
func (c *Conn) Session() *Session {
	return c.m.Session()
}
