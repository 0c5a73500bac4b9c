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
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/trustngotech/tls13client/internal/kex"
	"github.com/trustngotech/tls13client/internal/record"
	"github.com/trustngotech/tls13client/internal/wire"
)

// TestEncodeSupportedVersionsRoundTrip checks the exact wire encodings
// given in spec.md §8.2.
func TestEncodeSupportedVersionsRoundTrip(t *testing.T) {
	for i, tc := range []struct {
		minVersion uint16
		want       string
	}{
		{minVersion: 0x0304, want: "002b0003020304"},
		{minVersion: 0x0303, want: "002b00050403040303"},
	} {
		buf := make([]byte, 0, 32)
		w := wire.NewWriter(buf)
		n, err := EncodeSupportedVersions(w, tc.minVersion)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		got := hex.EncodeToString(w.Bytes())
		if got != tc.want {
			t.Errorf("case %d: got %s, want %s", i, got, tc.want)
		}
		if n != len(w.Bytes()) {
			t.Errorf("case %d: reported %d bytes, wrote %d", i, n, len(w.Bytes()))
		}
	}
}

func TestEncodeSupportedGroupsAndSignatureAlgorithms(t *testing.T) {
	buf := make([]byte, 0, 64)
	w := wire.NewWriter(buf)
	if _, err := EncodeSupportedGroups(w, []kex.NamedGroup{kex.GroupX25519, kex.GroupSECP256R1}); err != nil {
		t.Fatalf("EncodeSupportedGroups: %v", err)
	}
	got := hex.EncodeToString(w.Bytes())
	want := "000a00060004001d0017"
	if got != want {
		t.Errorf("supported_groups = %s, want %s", got, want)
	}

	buf2 := make([]byte, 0, 64)
	w2 := wire.NewWriter(buf2)
	if _, err := EncodeSignatureAlgorithms(w2, []uint16{0x0403, 0x0804}); err != nil {
		t.Fatalf("EncodeSignatureAlgorithms: %v", err)
	}
	got2 := hex.EncodeToString(w2.Bytes())
	want2 := "000d0006000404030804"
	if got2 != want2 {
		t.Errorf("signature_algorithms = %s, want %s", got2, want2)
	}
}

func TestAllowMaskEnforcement(t *testing.T) {
	for i, tc := range []struct {
		msgType record.HandshakeType
		code    Code
		wantErr bool
	}{
		{msgType: record.TypeServerHello, code: CodeSupportedVersions, wantErr: false},
		{msgType: record.TypeServerHello, code: CodeEarlyData, wantErr: true}, // spec.md §8.12
		{msgType: record.TypeEncryptedExtensions, code: CodeALPN, wantErr: false},
		{msgType: record.TypeEncryptedExtensions, code: CodeKeyShare, wantErr: true},
		{msgType: HelloRetryRequest, code: CodeCookie, wantErr: false},
		{msgType: HelloRetryRequest, code: CodeALPN, wantErr: true},
		{msgType: record.TypeCertificateRequest, code: CodeSignatureAlgorithms, wantErr: false},
	} {
		tr := NewTracker(tc.msgType)
		err := tr.Mark(tc.code)
		if (err != nil) != tc.wantErr {
			t.Errorf("case %d: Mark(%v in %v) err = %v, wantErr = %v", i, tc.code, tc.msgType, err, tc.wantErr)
		}
	}
}

func TestAllowMaskRejectsDuplicateExtension(t *testing.T) {
	tr := NewTracker(record.TypeServerHello)
	if err := tr.Mark(CodeKeyShare); err != nil {
		t.Fatalf("first Mark: %v", err)
	}
	if err := tr.Mark(CodeKeyShare); err == nil {
		t.Fatal("second Mark of the same code should fail (duplicate extension)")
	}
}

func TestParseSupportedVersionsServerHello(t *testing.T) {
	v, err := ParseSupportedVersionsServerHello([]byte{0x03, 0x04})
	if err != nil || v != 0x0304 {
		t.Fatalf("v, err = %v, %v; want 0x0304, nil", v, err)
	}
	if _, err := ParseSupportedVersionsServerHello([]byte{0x03, 0x03}); err == nil {
		t.Fatal("expected error for non-TLS1.3 supported_versions in ServerHello")
	}
	if _, err := ParseSupportedVersionsServerHello([]byte{0x03}); err == nil {
		t.Fatal("expected decode error for short body")
	}
}

func TestParseKeyShareServerHelloGroupMismatch(t *testing.T) {
	buf := make([]byte, 0, 128)
	w := wire.NewWriter(buf)
	_ = w.PutU16(uint16(kex.GroupSECP256R1))
	_ = w.PutVec16(bytes.Repeat([]byte{0x01}, 65))

	if _, err := ParseKeyShareServerHello(w.Bytes(), kex.GroupX25519); err == nil {
		t.Fatal("expected handshake_failure on group mismatch")
	}
	entry, err := ParseKeyShareServerHello(w.Bytes(), kex.GroupSECP256R1)
	if err != nil {
		t.Fatalf("matching group should succeed: %v", err)
	}
	if entry.Group != kex.GroupSECP256R1 {
		t.Fatalf("group = %v", entry.Group)
	}
}

func TestParseKeyShareHRRRejectsSameGroup(t *testing.T) {
	buf := make([]byte, 0, 8)
	w := wire.NewWriter(buf)
	_ = w.PutU16(uint16(kex.GroupX25519))

	offerable := []kex.NamedGroup{kex.GroupX25519, kex.GroupSECP256R1}
	if _, err := ParseKeyShareHRR(w.Bytes(), kex.GroupX25519, offerable); err == nil {
		t.Fatal("HRR selecting the already-offered group must fail (spec.md §3 invariant 3)")
	}

	buf2 := make([]byte, 0, 8)
	w2 := wire.NewWriter(buf2)
	_ = w2.PutU16(uint16(kex.GroupSECP256R1))
	g, err := ParseKeyShareHRR(w2.Bytes(), kex.GroupX25519, offerable)
	if err != nil || g != kex.GroupSECP256R1 {
		t.Fatalf("g, err = %v, %v", g, err)
	}
}

func TestParsePreSharedKeyServerHelloRange(t *testing.T) {
	buf := make([]byte, 0, 8)
	w := wire.NewWriter(buf)
	_ = w.PutU16(1)
	if _, err := ParsePreSharedKeyServerHello(w.Bytes(), 1); err == nil {
		t.Fatal("selected_identity == offered count should be out of range")
	}
	if idx, err := ParsePreSharedKeyServerHello(w.Bytes(), 2); err != nil || idx != 1 {
		t.Fatalf("idx, err = %v, %v; want 1, nil", idx, err)
	}
}

func TestParseALPNMustBeOffered(t *testing.T) {
	buf := make([]byte, 0, 32)
	w := wire.NewWriter(buf)
	listBuf := make([]byte, 0, 16)
	lw := wire.NewWriter(listBuf)
	_ = lw.PutVec8([]byte("h2"))
	_ = w.PutVec16(lw.Bytes())

	if _, err := ParseALPN(w.Bytes(), []string{"http/1.1"}); err == nil {
		t.Fatal("server selecting an unoffered protocol must fail")
	}
	proto, err := ParseALPN(w.Bytes(), []string{"http/1.1", "h2"})
	if err != nil || proto != "h2" {
		t.Fatalf("proto, err = %v, %v", proto, err)
	}
}
