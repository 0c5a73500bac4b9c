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
	"fmt"

	"github.com/trustngotech/tls13client/internal/kex"
	"github.com/trustngotech/tls13client/internal/wire"
)

// PSKMode is a value from the psk_key_exchange_modes registry (RFC
// 8446 §4.2.9).
type PSKMode uint8

const (
	PSKModeKE    PSKMode = 0 // psk_ke
	PSKModeDHEKE PSKMode = 1 // psk_dhe_ke
)

// writeHeader reserves the <ext_type:u16><ext_data_len:u16> prefix and
// returns the two reserved length bytes, which the caller passes to
// patchLen once the body length is known (every encoder in this file
// writes its body immediately after, so the patch always targets the
// two bytes just reserved).
func writeHeader(w *wire.Writer, code Code) ([]byte, error) {
	if err := w.PutU16(uint16(code)); err != nil {
		return nil, err
	}
	lenField, err := w.Reserve(2)
	if err != nil {
		return nil, err
	}
	return lenField, nil
}

func patchLen(lenField []byte, n int) error {
	if n > 0xffff {
		return fmt.Errorf("extension body of %d bytes does not fit in a u16 length field", n)
	}
	lenField[0], lenField[1] = byte(n>>8), byte(n)
	return nil
}

// EncodeSupportedVersions writes supported_versions for the
// ClientHello: 0x0304 always, plus 0x0303 iff minVersion <= TLS 1.2
// (spec.md §4.3). Returns the number of bytes written.
func EncodeSupportedVersions(w *wire.Writer, minVersion uint16) (int, error) {
	start := w.Len()
	lenField, err := writeHeader(w, CodeSupportedVersions)
	if err != nil {
		return 0, err
	}
	versions := []uint16{0x0304}
	if minVersion <= 0x0303 {
		versions = append(versions, 0x0303)
	}
	if err := w.PutU8(uint8(len(versions) * 2)); err != nil {
		return 0, err
	}
	for _, v := range versions {
		if err := w.PutU16(v); err != nil {
			return 0, err
		}
	}
	if err := patchLen(lenField, w.Len()-start-4); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// EncodeCookie writes the cookie extension, echoing a cookie received
// in an earlier HelloRetryRequest. Callers must not call this when no
// cookie is held (spec.md §4.3: "emitted only if a cookie was received
// in an HRR").
func EncodeCookie(w *wire.Writer, cookie []byte) (int, error) {
	start := w.Len()
	lenField, err := writeHeader(w, CodeCookie)
	if err != nil {
		return 0, err
	}
	if err := w.PutVec16(cookie); err != nil {
		return 0, err
	}
	if err := patchLen(lenField, w.Len()-start-4); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// EncodeKeyShare writes a key_share extension containing exactly one
// KeyShareEntry, per spec.md §4.3 / invariant 2 in §3.
func EncodeKeyShare(w *wire.Writer, group kex.NamedGroup, keyExchange []byte) (int, error) {
	start := w.Len()
	lenField, err := writeHeader(w, CodeKeyShare)
	if err != nil {
		return 0, err
	}
	entryLen := 2 + 2 + len(keyExchange)
	if err := w.PutU16(uint16(entryLen)); err != nil { // client_shares length
		return 0, err
	}
	if err := w.PutU16(uint16(group)); err != nil {
		return 0, err
	}
	if err := w.PutVec16(keyExchange); err != nil {
		return 0, err
	}
	if err := patchLen(lenField, w.Len()-start-4); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// EncodeSupportedGroups writes the supported_groups extension listing
// groups in preference order (RFC 8446 §4.2.7).
func EncodeSupportedGroups(w *wire.Writer, groups []kex.NamedGroup) (int, error) {
	if len(groups) == 0 {
		return 0, fmt.Errorf("extension: EncodeSupportedGroups called with no groups")
	}
	start := w.Len()
	lenField, err := writeHeader(w, CodeSupportedGroups)
	if err != nil {
		return 0, err
	}
	listLenField, err := w.Reserve(2)
	if err != nil {
		return 0, err
	}
	listStart := w.Len()
	for _, g := range groups {
		if err := w.PutU16(uint16(g)); err != nil {
			return 0, err
		}
	}
	if err := patchLen(listLenField, w.Len()-listStart); err != nil {
		return 0, err
	}
	if err := patchLen(lenField, w.Len()-start-4); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// EncodeSignatureAlgorithms writes the signature_algorithms extension
// listing SignatureScheme values in preference order (RFC 8446
// §4.2.3). Mandatory in every ClientHello that offers a certificate
// path (server or client auth).
func EncodeSignatureAlgorithms(w *wire.Writer, schemes []uint16) (int, error) {
	if len(schemes) == 0 {
		return 0, fmt.Errorf("extension: EncodeSignatureAlgorithms called with no schemes")
	}
	start := w.Len()
	lenField, err := writeHeader(w, CodeSignatureAlgorithms)
	if err != nil {
		return 0, err
	}
	listLenField, err := w.Reserve(2)
	if err != nil {
		return 0, err
	}
	listStart := w.Len()
	for _, s := range schemes {
		if err := w.PutU16(s); err != nil {
			return 0, err
		}
	}
	if err := patchLen(listLenField, w.Len()-listStart); err != nil {
		return 0, err
	}
	if err := patchLen(lenField, w.Len()-start-4); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// EncodePSKKeyExchangeModes writes psk_key_exchange_modes. If neither
// mode is enabled, it writes nothing and reports 0 bytes (spec.md
// §4.3: "Omitted entirely if no PSK mode is enabled").
func EncodePSKKeyExchangeModes(w *wire.Writer, pskKEEnabled, pskDHEKEEnabled bool) (int, error) {
	var modes []PSKMode
	if pskDHEKEEnabled {
		modes = append(modes, PSKModeDHEKE)
	}
	if pskKEEnabled {
		modes = append(modes, PSKModeKE)
	}
	if len(modes) == 0 {
		return 0, nil
	}
	start := w.Len()
	lenField, err := writeHeader(w, CodePSKKeyExchangeModes)
	if err != nil {
		return 0, err
	}
	if err := w.PutU8(uint8(len(modes))); err != nil {
		return 0, err
	}
	for _, m := range modes {
		if err := w.PutU8(uint8(m)); err != nil {
			return 0, err
		}
	}
	if err := patchLen(lenField, w.Len()-start-4); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// EncodeALPN writes the application_layer_protocol_negotiation
// extension listing protos in order.
func EncodeALPN(w *wire.Writer, protos []string) (int, error) {
	if len(protos) == 0 {
		return 0, nil
	}
	start := w.Len()
	lenField, err := writeHeader(w, CodeALPN)
	if err != nil {
		return 0, err
	}
	listLenField, err := w.Reserve(2)
	if err != nil {
		return 0, err
	}
	listStart := w.Len()
	for _, p := range protos {
		if err := w.PutVec8([]byte(p)); err != nil {
			return 0, err
		}
	}
	if err := patchLen(listLenField, w.Len()-listStart); err != nil {
		return 0, err
	}
	if err := patchLen(lenField, w.Len()-start-4); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// EncodeServerName writes the server_name extension for a single DNS
// hostname (RFC 6066 §3 - the only NameType TLS 1.3 clients send).
func EncodeServerName(w *wire.Writer, hostname string) (int, error) {
	if hostname == "" {
		return 0, nil
	}
	start := w.Len()
	lenField, err := writeHeader(w, CodeServerName)
	if err != nil {
		return 0, err
	}
	listLenField, err := w.Reserve(2)
	if err != nil {
		return 0, err
	}
	listStart := w.Len()
	if err := w.PutU8(0); err != nil { // NameType host_name
		return 0, err
	}
	if err := w.PutVec16([]byte(hostname)); err != nil {
		return 0, err
	}
	if err := patchLen(listLenField, w.Len()-listStart); err != nil {
		return 0, err
	}
	if err := patchLen(lenField, w.Len()-start-4); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// EncodeEarlyData writes the (empty-bodied) early_data indication for
// a ClientHello offering 0-RTT.
func EncodeEarlyData(w *wire.Writer) (int, error) {
	start := w.Len()
	if err := w.PutU16(uint16(CodeEarlyData)); err != nil {
		return 0, err
	}
	if err := w.PutU16(0); err != nil {
		return 0, err
	}
	return w.Len() - start, nil
}

// OfferedIdentity is one entry of the pre_shared_key identities list.
type OfferedIdentity struct {
	Identity      []byte
	ObfuscatedAge uint32
	BinderLen     int // hash output length of this PSK's cipher suite
}

// PreSharedKeyReservation is returned by EncodePreSharedKeyIdentities
// so the caller can, after hashing the truncated ClientHello, patch
// each reserved binder in place (spec.md §4.5).
type PreSharedKeyReservation struct {
	// BindersLenField is the two-byte PskBinderEntry list length
	// prefix; EncodePreSharedKeyIdentities has already filled it in,
	// since every binder's length is known when it is reserved.
	BindersLenField []byte
	// Binders holds, per offered identity and in the same order, the
	// reserved (currently zeroed) binder bytes to overwrite.
	Binders [][]byte
}

// EncodePreSharedKeyIdentities writes the identities portion of
// pre_shared_key and reserves zeroed space for the binders, per
// spec.md §4.5 steps 1-2. This MUST be the last extension written
// (invariant §3.4); callers are responsible for that ordering.
func EncodePreSharedKeyIdentities(w *wire.Writer, offered []OfferedIdentity) (*PreSharedKeyReservation, error) {
	if len(offered) == 0 {
		return nil, fmt.Errorf("extension: EncodePreSharedKeyIdentities called with no offered PSKs")
	}
	lenField, err := writeHeader(w, CodePreSharedKey)
	if err != nil {
		return nil, err
	}
	extStart := w.Len()

	identitiesLenField, err := w.Reserve(2)
	if err != nil {
		return nil, err
	}
	identitiesStart := w.Len()
	for _, id := range offered {
		if err := w.PutVec16(id.Identity); err != nil {
			return nil, err
		}
		if err := w.PutU32(id.ObfuscatedAge); err != nil {
			return nil, err
		}
	}
	if err := patchLen(identitiesLenField, w.Len()-identitiesStart); err != nil {
		return nil, err
	}

	bindersLenField, err := w.Reserve(2)
	if err != nil {
		return nil, err
	}
	bindersStart := w.Len()
	binders := make([][]byte, len(offered))
	for i, id := range offered {
		b, err := w.Reserve(id.BinderLen + 1) // 1-byte vector length prefix
		if err != nil {
			return nil, err
		}
		b[0] = byte(id.BinderLen)
		binders[i] = b[1:]
	}
	if err := patchLen(bindersLenField, w.Len()-bindersStart); err != nil {
		return nil, err
	}

	if err := patchLen(lenField, w.Len()-extStart); err != nil {
		return nil, err
	}
	return &PreSharedKeyReservation{BindersLenField: bindersLenField, Binders: binders}, nil
}
