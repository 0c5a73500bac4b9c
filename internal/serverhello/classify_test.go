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

package serverhello

import (
	"testing"

	"github.com/trustngotech/tls13client/internal/wire"
)

func buildServerHello(t *testing.T, random [32]byte, sessionID []byte, extensions []byte) []byte {
	t.Helper()
	buf := make([]byte, 0, 256)
	w := wire.NewWriter(buf)
	if err := w.PutU16(0x0303); err != nil { // legacy_version is always {3,3} on the wire
		t.Fatalf("PutU16: %v", err)
	}
	if err := w.PutBytes(random[:]); err != nil {
		t.Fatalf("PutBytes(random): %v", err)
	}
	if err := w.PutVec8(sessionID); err != nil {
		t.Fatalf("PutVec8(sessionID): %v", err)
	}
	if err := w.PutU16(0x1301); err != nil { // TLS_AES_128_GCM_SHA256
		t.Fatalf("PutU16(cipherSuite): %v", err)
	}
	if err := w.PutU8(0x00); err != nil {
		t.Fatalf("PutU8(compression): %v", err)
	}
	if extensions != nil {
		if err := w.PutVec16(extensions); err != nil {
			t.Fatalf("PutVec16(extensions): %v", err)
		}
	}
	return w.Bytes()
}

func supportedVersionsExt(t *testing.T, version uint16) []byte {
	t.Helper()
	buf := make([]byte, 0, 16)
	w := wire.NewWriter(buf)
	if err := w.PutU16(43); err != nil { // supported_versions
		t.Fatalf("PutU16(code): %v", err)
	}
	body := make([]byte, 0, 2)
	bw := wire.NewWriter(body)
	if err := bw.PutU16(version); err != nil {
		t.Fatalf("PutU16(version): %v", err)
	}
	if err := w.PutVec16(bw.Bytes()); err != nil {
		t.Fatalf("PutVec16(body): %v", err)
	}
	return w.Bytes()
}

func TestClassifyGenuineServerHello(t *testing.T) {
	var random [32]byte
	random[0] = 0xAB
	body := buildServerHello(t, random, nil, supportedVersionsExt(t, 0x0304))

	sh, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := Classify(sh, 0x0304)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != CaseServerHello {
		t.Fatalf("Classify = %v, want CaseServerHello", got)
	}
}

func TestClassifyHelloRetryRequest(t *testing.T) {
	body := buildServerHello(t, hrrRandomMagic, nil, supportedVersionsExt(t, 0x0304))

	sh, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := Classify(sh, 0x0304)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != CaseHelloRetryRequest {
		t.Fatalf("Classify = %v, want CaseHelloRetryRequest", got)
	}
}

// TestClassifyDowngradeDetection covers spec.md §8.3: a server that
// omits supported_versions but signals the TLS 1.2 downgrade magic
// must be rejected with illegal_parameter, since this client only
// ever offers TLS 1.3.
func TestClassifyDowngradeDetection(t *testing.T) {
	var random [32]byte
	copy(random[24:32], []byte("DOWNGRD\x01"))
	body := buildServerHello(t, random, nil, nil)

	sh, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Classify(sh, 0x0304); err == nil {
		t.Fatal("expected illegal_parameter on TLS 1.2 downgrade magic")
	}
}

func TestClassifyDowngradeDetectionTLS11OrBelow(t *testing.T) {
	var random [32]byte
	copy(random[24:32], []byte("DOWNGRD\x00"))
	body := buildServerHello(t, random, nil, nil)

	sh, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Classify(sh, 0x0304); err == nil {
		t.Fatal("expected illegal_parameter on TLS <=1.1 downgrade magic")
	}
}

// TestClassifyLegacyHandoffWithoutMagic covers the benign case: a
// genuinely TLS-1.2-only server (no downgrade magic, since it was
// never TLS-1.3-aware) should be classified as a handoff, not an
// error, when the client's floor allows it.
func TestClassifyLegacyHandoffWithoutMagic(t *testing.T) {
	var random [32]byte
	random[31] = 0x42
	body := buildServerHello(t, random, nil, nil)

	sh, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := Classify(sh, 0x0301)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != CaseDowngradeHandoff {
		t.Fatalf("Classify = %v, want CaseDowngradeHandoff", got)
	}
}

func TestClassifyBelowMinVersionRejected(t *testing.T) {
	var random [32]byte
	body := buildServerHello(t, random, nil, nil)

	sh, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Classify(sh, 0x0304); err == nil {
		t.Fatal("expected bad_protocol_version when legacy_version is below the client's configured floor")
	}
}

func TestParseRejectsNonZeroCompressionMethod(t *testing.T) {
	buf := make([]byte, 0, 64)
	w := wire.NewWriter(buf)
	_ = w.PutU16(0x0303)
	var random [32]byte
	_ = w.PutBytes(random[:])
	_ = w.PutVec8(nil)
	_ = w.PutU16(0x1301)
	_ = w.PutU8(0x01) // invalid

	if _, err := Parse(w.Bytes()); err == nil {
		t.Fatal("expected illegal_parameter on non-zero compression method")
	}
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	body := buildServerHello(t, [32]byte{}, nil, supportedVersionsExt(t, 0x0304))
	body = append(body, 0xff)
	if _, err := Parse(body); err == nil {
		t.Fatal("expected decode error on trailing bytes")
	}
}
