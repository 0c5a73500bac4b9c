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

// Package extension implements the ClientHello extension encoders
// (C2) and the ServerHello/HRR/EncryptedExtensions/CertificateRequest/
// NewSessionTicket extension parsers (C3) from spec.md §4.3-4.4,
// including the shared per-message allow-mask helper from §4.2.
package extension

import (
	"fmt"

	"github.com/trustngotech/tls13client/internal/alert"
	"github.com/trustngotech/tls13client/internal/record"
)

// Code is an IANA TLS ExtensionType value.
type Code uint16

const (
	CodeServerName           Code = 0
	CodeSupportedGroups      Code = 10
	CodeSignatureAlgorithms  Code = 13
	CodeALPN                 Code = 16
	CodePreSharedKey         Code = 41
	CodeEarlyData            Code = 42
	CodeSupportedVersions    Code = 43
	CodeCookie               Code = 44
	CodePSKKeyExchangeModes  Code = 45
	CodeKeyShare             Code = 51
)

func (c Code) String() string {
	switch c {
	case CodeServerName:
		return "server_name"
	case CodeSupportedGroups:
		return "supported_groups"
	case CodeSignatureAlgorithms:
		return "signature_algorithms"
	case CodeALPN:
		return "application_layer_protocol_negotiation"
	case CodePreSharedKey:
		return "pre_shared_key"
	case CodeEarlyData:
		return "early_data"
	case CodeSupportedVersions:
		return "supported_versions"
	case CodeCookie:
		return "cookie"
	case CodePSKKeyExchangeModes:
		return "psk_key_exchange_modes"
	case CodeKeyShare:
		return "key_share"
	default:
		return fmt.Sprintf("extension(%d)", uint16(c))
	}
}

// allowMasks enumerates, per handshake message type, the extension
// codes the client may legally send or accept (spec.md §4.2). A
// message type absent from this map allows none (the parser rejects
// every extension for it).
var allowMasks = map[record.HandshakeType]map[Code]bool{
	record.TypeClientHello: {
		CodeSupportedVersions:   true,
		CodeKeyShare:            true,
		CodeSupportedGroups:     true,
		CodeSignatureAlgorithms: true,
		CodeServerName:          true,
		CodeALPN:                true,
		CodeCookie:              true,
		CodePSKKeyExchangeModes: true,
		CodePreSharedKey:        true,
		CodeEarlyData:           true,
	},
	record.TypeServerHello: {
		CodeSupportedVersions: true,
		CodeKeyShare:          true,
		CodePreSharedKey:      true,
	},
	// HelloRetryRequest shares the ServerHello wire shape but a
	// narrower allow-mask; the classifier (internal/serverhello)
	// dispatches to this mask once it recognizes the HRR random.
	hrrPseudoType: {
		CodeSupportedVersions: true,
		CodeKeyShare:          true,
		CodeCookie:            true,
	},
	record.TypeEncryptedExtensions: {
		CodeServerName: true,
		CodeALPN:       true,
		CodeEarlyData:  true,
	},
	record.TypeCertificateRequest: {
		CodeSignatureAlgorithms: true,
	},
	record.TypeNewSessionTicket: {
		CodeEarlyData: true,
	},
}

// hrrPseudoType is a synthetic record.HandshakeType value used only as
// a map key here to distinguish the HRR allow-mask from ServerHello's,
// since both share wire type 2 (RFC 8446 §4.1.4) and are disambiguated
// upstream by internal/serverhello before extension parsing begins.
const hrrPseudoType record.HandshakeType = 0xf2

// HelloRetryRequest is the HandshakeType value callers pass to Tracker
// and the allow-mask lookups once internal/serverhello has classified
// a message as an HRR.
const HelloRetryRequest = hrrPseudoType

// Tracker records which extension codes have been seen in the message
// currently being parsed, enforcing spec.md §4.2's two rules: every
// code must be in the message's allow-mask, and no code may repeat.
type Tracker struct {
	msgType record.HandshakeType
	seen    map[Code]bool
}

// NewTracker starts tracking extensions for a message of the given
// type (pass extension.HelloRetryRequest for an HRR).
func NewTracker(msgType record.HandshakeType) *Tracker {
	return &Tracker{msgType: msgType, seen: make(map[Code]bool)}
}

// Mark validates and records one received extension code. It returns
// a fatal *alert.Error if the code is disallowed for this message type
// (unsupported_extension) or has already been seen in this message
// (illegal_parameter, "duplicate extension").
func (t *Tracker) Mark(code Code) error {
	mask, ok := allowMasks[t.msgType]
	if !ok || !mask[code] {
		return alert.New(alert.KindUnsupportedExtension,
			"extension %s is not permitted in %v", code, t.msgType)
	}
	if t.seen[code] {
		return alert.New(alert.KindIllegalParameter,
			"extension %s appears more than once in %v", code, t.msgType)
	}
	t.seen[code] = true
	return nil
}

// Has reports whether code was recorded by a prior Mark call.
func (t *Tracker) Has(code Code) bool { return t.seen[code] }

// Codes returns every extension code marked so far, for diagnostics.
func (t *Tracker) Codes() []Code {
	out := make([]Code, 0, len(t.seen))
	for c := range t.seen {
		out = append(out, c)
	}
	return out
}
