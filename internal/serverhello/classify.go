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

// Package serverhello implements the ServerHello classifier (C5):
// the first inbound message after ClientHello is either a genuine
// TLS 1.3 ServerHello, a HelloRetryRequest (same wire shape, magic
// random), or a downgrade to TLS <=1.2 — which must be checked for
// the RFC 8446 §4.1.3 downgrade-attack signal before handoff. This
// mirrors the bounds-checked, best-effort-first scan style of
// caddyserver-caddy's parseRawClientHello, but raises typed errors
// instead of silently truncating, since (unlike the teacher's MITM
// heuristic) correctness here is load-bearing.
package serverhello

import (
	"bytes"
	"crypto/sha256"

	"github.com/trustngotech/tls13client/internal/alert"
	"github.com/trustngotech/tls13client/internal/wire"
)

// hrrRandomMagic is SHA-256("HelloRetryRequest"), the fixed 32-byte
// value RFC 8446 §4.1.3 requires a server to send as ServerHello.random
// when it wants a HelloRetryRequest instead of a proper ServerHello.
var hrrRandomMagic = sha256.Sum256([]byte("HelloRetryRequest"))

// downgradeMagicTLS12 and downgradeMagicTLS11OrBelow are the last 8
// bytes of ServerHello.random a TLS 1.3-aware server MUST send when it
// is deliberately negotiating TLS 1.2 or TLS <=1.1, so a downgrade
// attack against a TLS-1.3-capable client can be detected (RFC 8446
// §4.1.3).
var (
	downgradeMagicTLS12        = []byte("DOWNGRD\x01")
	downgradeMagicTLS11OrBelow = []byte("DOWNGRD\x00")
)

// Case is the classifier's verdict.
type Case int

const (
	CaseServerHello Case = iota
	CaseHelloRetryRequest
	CaseDowngradeHandoff
)

// ServerHello is the wire-parsed (but not extension-parsed) shell of a
// ServerHello/HRR message: everything the classifier needs, plus the
// raw extensions block for the caller to dispatch to internal/extension.
type ServerHello struct {
	LegacyVersion     uint16
	Random            [32]byte
	SessionIDEcho     []byte
	CipherSuite       uint16
	CompressionMethod uint8
	Extensions        []byte // raw <extensions> block, not yet parsed
}

// Parse decodes the fixed ServerHello/HRR prefix common to both
// (RFC 8446 §4.1.3/§4.1.4), performing length checks and rejecting a
// non-zero legacy_compression_method — no extension interpretation
// happens here.
func Parse(body []byte) (ServerHello, error) {
	var sh ServerHello
	r := wire.NewReader(body)

	v, err := r.U16()
	if err != nil {
		return sh, alert.Wrap(alert.KindDecodeError, err, "ServerHello: legacy_version")
	}
	sh.LegacyVersion = v

	randBytes, err := r.Bytes(32)
	if err != nil {
		return sh, alert.Wrap(alert.KindDecodeError, err, "ServerHello: random")
	}
	copy(sh.Random[:], randBytes)

	sid, err := r.Vec8(0, 32)
	if err != nil {
		return sh, alert.Wrap(alert.KindDecodeError, err, "ServerHello: legacy_session_id_echo")
	}
	sh.SessionIDEcho = append([]byte(nil), sid...)

	cs, err := r.U16()
	if err != nil {
		return sh, alert.Wrap(alert.KindDecodeError, err, "ServerHello: cipher_suite")
	}
	sh.CipherSuite = cs

	cm, err := r.U8()
	if err != nil {
		return sh, alert.Wrap(alert.KindDecodeError, err, "ServerHello: legacy_compression_method")
	}
	sh.CompressionMethod = cm
	if cm != 0x00 {
		return sh, alert.New(alert.KindIllegalParameter, "ServerHello: legacy_compression_method must be 0x00, got 0x%02x", cm)
	}

	if r.Done() {
		sh.Extensions = nil
	} else {
		ext, err := r.Vec16(0, 0xffff)
		if err != nil {
			return sh, alert.Wrap(alert.KindDecodeError, err, "ServerHello: extensions")
		}
		sh.Extensions = ext
	}
	if !r.Done() {
		return sh, alert.New(alert.KindDecodeError, "ServerHello: trailing bytes after extensions")
	}
	return sh, nil
}

// hasSupportedVersions scans the raw extensions block for the
// presence of the supported_versions extension type (43), without
// fully parsing it — that's step 1 of the classifier (spec.md §4.6).
func hasSupportedVersions(extensions []byte) (bool, error) {
	r := wire.NewReader(extensions)
	for !r.Done() {
		code, err := r.U16()
		if err != nil {
			return false, alert.Wrap(alert.KindDecodeError, err, "ServerHello extensions: type")
		}
		body, err := r.Vec16(0, 0xffff)
		if err != nil {
			return false, alert.Wrap(alert.KindDecodeError, err, "ServerHello extensions: body")
		}
		if code == 43 { // supported_versions
			_ = body
			return true, nil
		}
	}
	return false, nil
}

// Classify implements C5: it decides whether sh is a true TLS 1.3
// ServerHello, a HelloRetryRequest, or a downgrade to <=TLS 1.2,
// applying the RFC 8446 §4.1.3 downgrade guard and the client's
// minTLSVersion floor. The downgrade-magic check is always applied,
// since this engine always offers TLS 1.3.
func Classify(sh ServerHello, minTLSVersion uint16) (Case, error) {
	has13, err := hasSupportedVersions(sh.Extensions)
	if err != nil {
		return 0, err
	}

	if !has13 {
		last8 := sh.Random[24:32]
		if bytes.Equal(last8, downgradeMagicTLS12) || bytes.Equal(last8, downgradeMagicTLS11OrBelow) {
			return 0, alert.New(alert.KindIllegalParameter,
				"ServerHello.random carries the RFC 8446 §4.1.3 downgrade-detection magic; a TLS 1.3-aware server must not select legacy_version %#04x against a client that offered TLS 1.3", sh.LegacyVersion)
		}
		if sh.LegacyVersion < minTLSVersion {
			return 0, alert.New(alert.KindBadProtocolVersion,
				"server selected legacy_version %#04x, below the client's configured minimum %#04x", sh.LegacyVersion, minTLSVersion)
		}
		return CaseDowngradeHandoff, nil
	}

	if sh.Random == hrrRandomMagic {
		return CaseHelloRetryRequest, nil
	}
	return CaseServerHello, nil
}
