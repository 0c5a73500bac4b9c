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

package extension

import (
	"errors"

	"github.com/trustngotech/tls13client/internal/alert"
	"github.com/trustngotech/tls13client/internal/kex"
	"github.com/trustngotech/tls13client/internal/wire"
)

func decodeErr(err error, format string, args ...interface{}) error {
	return alert.Wrap(alert.KindDecodeError, err, format, args...)
}

// ParseSupportedVersionsServerHello parses the ServerHello form of
// supported_versions: exactly two bytes equal to 0x0304 (spec.md
// §4.4). Any other content is a decode or protocol error.
func ParseSupportedVersionsServerHello(body []byte) (uint16, error) {
	if len(body) != 2 {
		return 0, alert.New(alert.KindDecodeError,
			"supported_versions in ServerHello has length %d, want 2", len(body))
	}
	v := uint16(body[0])<<8 | uint16(body[1])
	if v != 0x0304 {
		return 0, alert.New(alert.KindIllegalParameter,
			"ServerHello supported_versions selected 0x%04x, want 0x0304", v)
	}
	return v, nil
}

// KeyShareEntry is one decoded key_share entry.
type KeyShareEntry struct {
	Group       kex.NamedGroup
	KeyExchange []byte
}

// ParseKeyShareServerHello parses the ServerHello form of key_share: a
// single KeyShareEntry whose group must equal offeredGroup (spec.md
// §4.4, §3 invariant 1-2).
func ParseKeyShareServerHello(body []byte, offeredGroup kex.NamedGroup) (KeyShareEntry, error) {
	r := wire.NewReader(body)
	group, err := r.U16()
	if err != nil {
		return KeyShareEntry{}, decodeErr(err, "key_share (ServerHello): group")
	}
	ke, err := r.Vec16(1, 0xffff)
	if err != nil {
		return KeyShareEntry{}, decodeErr(err, "key_share (ServerHello): key_exchange")
	}
	if !r.Done() {
		return KeyShareEntry{}, alert.New(alert.KindDecodeError, "key_share (ServerHello): trailing bytes")
	}
	if kex.NamedGroup(group) != offeredGroup {
		return KeyShareEntry{}, alert.New(alert.KindHandshakeFailure,
			"ServerHello key_share group 0x%04x does not match offered group 0x%04x", group, offeredGroup)
	}
	return KeyShareEntry{Group: kex.NamedGroup(group), KeyExchange: ke}, nil
}

// ParseKeyShareHRR parses the HelloRetryRequest form of key_share: a
// bare selected_group, which must differ from the group we already
// sent a key_share for (spec.md §4.4, invariant §3.3).
func ParseKeyShareHRR(body []byte, alreadyOffered kex.NamedGroup, offerable []kex.NamedGroup) (kex.NamedGroup, error) {
	r := wire.NewReader(body)
	group, err := r.U16()
	if err != nil {
		return 0, decodeErr(err, "key_share (HRR): selected_group")
	}
	if !r.Done() {
		return 0, alert.New(alert.KindDecodeError, "key_share (HRR): trailing bytes")
	}
	selected := kex.NamedGroup(group)
	if selected == alreadyOffered {
		return 0, alert.New(alert.KindIllegalParameter,
			"HelloRetryRequest selected the same group 0x%04x the client already offered", group)
	}
	var found bool
	for _, g := range offerable {
		if g == selected {
			found = true
			break
		}
	}
	if !found {
		return 0, alert.New(alert.KindIllegalParameter,
			"HelloRetryRequest selected group 0x%04x, which the client never offered in supported_groups", group)
	}
	return selected, nil
}

// ParseCookie parses the HRR cookie extension: a length-prefixed
// opaque blob, stored verbatim (spec.md §4.4).
func ParseCookie(body []byte) ([]byte, error) {
	r := wire.NewReader(body)
	c, err := r.Vec16(1, 0xffff)
	if err != nil {
		return nil, decodeErr(err, "cookie")
	}
	if !r.Done() {
		return nil, alert.New(alert.KindDecodeError, "cookie: trailing bytes")
	}
	out := make([]byte, len(c))
	copy(out, c)
	return out, nil
}

// ParsePreSharedKeyServerHello parses the ServerHello form of
// pre_shared_key: a single selected_identity index, which must be
// less than offeredCount (spec.md §4.4).
func ParsePreSharedKeyServerHello(body []byte, offeredCount int) (uint16, error) {
	r := wire.NewReader(body)
	idx, err := r.U16()
	if err != nil {
		return 0, decodeErr(err, "pre_shared_key (ServerHello): selected_identity")
	}
	if !r.Done() {
		return 0, alert.New(alert.KindDecodeError, "pre_shared_key (ServerHello): trailing bytes")
	}
	if int(idx) >= offeredCount {
		return 0, alert.New(alert.KindIllegalParameter,
			"selected_identity %d is out of range; only %d PSKs were offered", idx, offeredCount)
	}
	return idx, nil
}

// ParseALPN parses the EncryptedExtensions form of ALPN: a
// single-entry ProtocolNameList whose entry must be in offered, per
// spec.md §4.4.
func ParseALPN(body []byte, offered []string) (string, error) {
	r := wire.NewReader(body)
	list, err := r.Vec16(2, 0xffff)
	if err != nil {
		return "", decodeErr(err, "alpn: protocol name list")
	}
	if !r.Done() {
		return "", alert.New(alert.KindDecodeError, "alpn: trailing bytes")
	}
	lr := wire.NewReader(list)
	proto, err := lr.Vec8(1, 255)
	if err != nil {
		return "", decodeErr(err, "alpn: protocol name")
	}
	if !lr.Done() {
		return "", alert.New(alert.KindDecodeError, "alpn: server selected more than one protocol")
	}
	selected := string(proto)
	for _, o := range offered {
		if o == selected {
			return selected, nil
		}
	}
	return "", alert.New(alert.KindIllegalParameter,
		"server selected ALPN protocol %q, which the client never offered", selected)
}

// ParseEarlyDataEncryptedExtensions validates the (empty) early_data
// body in EncryptedExtensions; its mere presence flips early-data
// status to accepted (spec.md §4.4).
func ParseEarlyDataEncryptedExtensions(body []byte) error {
	if len(body) != 0 {
		return alert.New(alert.KindDecodeError, "early_data in EncryptedExtensions must be empty, got %d bytes", len(body))
	}
	return nil
}

// ParseEarlyDataTicket parses the NewSessionTicket form of early_data:
// a 4-byte max_early_data_size (spec.md §4.4).
func ParseEarlyDataTicket(body []byte) (uint32, error) {
	r := wire.NewReader(body)
	v, err := r.U32()
	if err != nil {
		return 0, decodeErr(err, "early_data (NewSessionTicket): max_early_data_size")
	}
	if !r.Done() {
		return 0, alert.New(alert.KindDecodeError, "early_data (NewSessionTicket): trailing bytes")
	}
	return v, nil
}

// SignatureScheme is a value from the TLS SignatureScheme registry.
type SignatureScheme uint16

// ParseSignatureAlgorithmsCertificateRequest parses the required
// signature_algorithms extension of a CertificateRequest (spec.md
// §4.4).
func ParseSignatureAlgorithmsCertificateRequest(body []byte) ([]SignatureScheme, error) {
	r := wire.NewReader(body)
	list, err := r.Vec16(2, 0xffff)
	if err != nil {
		return nil, decodeErr(err, "signature_algorithms: list")
	}
	if !r.Done() {
		return nil, alert.New(alert.KindDecodeError, "signature_algorithms: trailing bytes")
	}
	if len(list)%2 != 0 {
		return nil, alert.New(alert.KindDecodeError, "signature_algorithms: odd-length list")
	}
	lr := wire.NewReader(list)
	var out []SignatureScheme
	for !lr.Done() {
		v, err := lr.U16()
		if err != nil {
			return nil, decodeErr(err, "signature_algorithms: entry")
		}
		out = append(out, SignatureScheme(v))
	}
	if len(out) == 0 {
		return nil, alert.New(alert.KindDecodeError, "signature_algorithms: empty list")
	}
	return out, nil
}

// ErrMissingRequiredExtension is wrapped into an alert.Error by
// callers (e.g. internal/handshake) when CertificateRequest lacks its
// mandatory signature_algorithms extension.
var ErrMissingRequiredExtension = errors.New("extension: required extension missing")
