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

package handshake

import (
	"crypto/sha256"
	"hash"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustngotech/tls13client/internal/alert"
	"github.com/trustngotech/tls13client/internal/kex"
	"github.com/trustngotech/tls13client/internal/keyschedule"
	"github.com/trustngotech/tls13client/internal/psk"
	"github.com/trustngotech/tls13client/internal/record"
	"github.com/trustngotech/tls13client/internal/wire"
)

// fakeTranscriptHash is a minimal, deterministic stand-in for the
// record layer's running transcript hash (spec.md §6 names it as an
// out-of-scope collaborator); it lets tests construct an independent
// mirror that is guaranteed to reach the same digest as the Machine's
// own instance, since both are pure functions of the same byte
// sequence.
type fakeTranscriptHash struct {
	h hash.Hash
}

func newFakeTranscriptHash() *fakeTranscriptHash {
	return &fakeTranscriptHash{h: sha256.New()}
}

func (f *fakeTranscriptHash) AddMessageHeader(t record.HandshakeType, length int) {
	f.h.Write([]byte{byte(t), byte(length >> 16), byte(length >> 8), byte(length)})
}

func (f *fakeTranscriptHash) AddBytes(b []byte) { f.h.Write(b) }

func (f *fakeTranscriptHash) Snapshot() []byte { return f.h.Sum(nil) }

func (f *fakeTranscriptHash) ResetForHRR() {
	mh := f.h.Sum(nil)
	f.h = sha256.New()
	f.h.Write([]byte{byte(record.TypeMessageHash), 0, 0, byte(len(mh))})
	f.h.Write(mh)
}

func (f *fakeTranscriptHash) Size() int { return sha256.Size }

// fakeLayer is an in-memory record.Layer: inbound messages are
// scripted by the test ahead of time, outbound messages are captured
// for inspection, and ErrWantIO simulates a message that has not
// arrived yet.
type fakeLayer struct {
	inbound    []record.Message
	inboundIdx int

	outbound []record.Message

	writeType record.HandshakeType
	writeBuf  []byte

	inTransform  record.Transform
	outTransform record.Transform
	ccsCount     int
	pendingAlert *alert.Error
}

func (l *fakeLayer) FetchHandshakeMessage(expected record.HandshakeType) (record.Message, error) {
	if l.inboundIdx >= len(l.inbound) {
		return record.Message{}, record.ErrWantIO
	}
	msg := l.inbound[l.inboundIdx]
	if expected != 0 && msg.Type != expected {
		return record.Message{}, alert.New(alert.KindUnexpectedMessage, "fakeLayer: expected %v, got %v", expected, msg.Type)
	}
	l.inboundIdx++
	return msg, nil
}

func (l *fakeLayer) StartMessage(t record.HandshakeType, capacity int) ([]byte, error) {
	l.writeType = t
	l.writeBuf = make([]byte, 0, capacity)
	return l.writeBuf, nil
}

func (l *fakeLayer) FinishMessage(length int) error {
	l.outbound = append(l.outbound, record.Message{Type: l.writeType, Body: append([]byte(nil), l.writeBuf[:length]...)})
	return nil
}

func (l *fakeLayer) SetInboundTransform(t record.Transform) error {
	l.inTransform = t
	return nil
}

func (l *fakeLayer) SetOutboundTransform(t record.Transform) error {
	l.outTransform = t
	return nil
}

func (l *fakeLayer) WriteChangeCipherSpec() error {
	l.ccsCount++
	return nil
}

func (l *fakeLayer) PendFatalAlert(desc alert.Description, cause error) {
	l.pendingAlert = alert.Wrap(alert.KindInternalError, cause, "pending alert %v", desc)
}

func extHeader(t *testing.T, code uint16, body []byte) []byte {
	t.Helper()
	buf := make([]byte, 0, 4+len(body))
	w := wire.NewWriter(buf)
	require.NoError(t, w.PutU16(code))
	require.NoError(t, w.PutVec16(body))
	return w.Bytes()
}

func buildServerHelloBody(t *testing.T, sessionIDEcho []byte, cipherSuite uint16, extBlocks ...[]byte) []byte {
	t.Helper()
	var extensions []byte
	for _, b := range extBlocks {
		extensions = append(extensions, b...)
	}
	buf := make([]byte, 0, 256)
	w := wire.NewWriter(buf)
	require.NoError(t, w.PutU16(0x0303))
	var random [32]byte
	random[0] = 0x11
	require.NoError(t, w.PutBytes(random[:]))
	require.NoError(t, w.PutVec8(sessionIDEcho))
	require.NoError(t, w.PutU16(cipherSuite))
	require.NoError(t, w.PutU8(0x00))
	require.NoError(t, w.PutVec16(extensions))
	return w.Bytes()
}

func supportedVersionsExt(t *testing.T) []byte {
	t.Helper()
	body := make([]byte, 0, 2)
	bw := wire.NewWriter(body)
	require.NoError(t, bw.PutU16(0x0304))
	return extHeader(t, 43, bw.Bytes())
}

func preSharedKeySelectedExt(t *testing.T, selectedIdentity uint16) []byte {
	t.Helper()
	body := make([]byte, 0, 2)
	bw := wire.NewWriter(body)
	require.NoError(t, bw.PutU16(selectedIdentity))
	return extHeader(t, 41, bw.Bytes())
}

func baseConfig() *Config {
	return &Config{
		MinTLSVersion: 0x0304,
		MaxTLSVersion: 0x0304,
		CipherSuites:  []CipherSuite{SuiteAES128GCMSHA256},
		Groups:        []kex.Group{kex.Default[0]},
		SignatureAlgs: []uint16{0x0804},
	}
}

// TestFullHandshakePureExternalPSKMode drives a complete connection in
// pure-PSK mode (no ephemeral key share selected, no certificate
// messages), exercising the full PSK binder path, the mode-decision
// table's (PSK, no key_share) branch, and every key-schedule
// transition through ResultHandshakeComplete — spec.md §8.8 and §8.11.
func TestFullHandshakePureExternalPSKMode(t *testing.T) {
	cfg := baseConfig()
	cfg.PSKModes = PSKExchangeModes{PSKKEEnabled: true}
	cfg.ExternalPSK = &psk.ExternalPSK{
		Identity: []byte("test-identity"),
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Suite:    keyschedule.SHA256,
	}

	layer := &fakeLayer{}
	trans := newFakeTranscriptHash()
	m := New(cfg, layer, trans)

	res, err := m.Step()
	require.NoError(t, err)
	require.Equal(t, ResultWantIO, res)
	require.Len(t, layer.outbound, 1)
	require.Equal(t, record.TypeClientHello, layer.outbound[0].Type)

	clientHandshakeSecret := append([]byte(nil), m.clientHandshakeTrafficSecret...)
	require.Empty(t, clientHandshakeSecret, "handshake secrets are not derived until ServerHello arrives")

	chBytes := layer.outbound[0].Body

	shBody := buildServerHelloBody(t, m.legacySessionID, SuiteAES128GCMSHA256.ID,
		supportedVersionsExt(t), preSharedKeySelectedExt(t, 0))
	layer.inbound = append(layer.inbound, record.Message{Type: record.TypeServerHello, Body: shBody})

	res, err = m.Step()
	require.NoError(t, err)
	require.Equal(t, ResultWantIO, res, "must block awaiting EncryptedExtensions")
	require.Equal(t, ModePSK, m.keyExchangeMode)
	require.NotEmpty(t, m.serverHandshakeTrafficSecret)
	require.NotEmpty(t, m.clientHandshakeTrafficSecret)
	require.NotNil(t, layer.inTransform, "handshake inbound transform must be installed right after ServerHello")

	suite := m.schedule.Suite
	serverHSSecret := append([]byte(nil), m.serverHandshakeTrafficSecret...)
	clientHSSecret := append([]byte(nil), m.clientHandshakeTrafficSecret...)

	eeBody := []byte{0x00, 0x00} // empty EncryptedExtensions list
	layer.inbound = append(layer.inbound, record.Message{Type: record.TypeEncryptedExtensions, Body: eeBody})

	mirror := newFakeTranscriptHash()
	mirror.AddMessageHeader(record.TypeClientHello, len(chBytes))
	mirror.AddBytes(chBytes)
	mirror.AddMessageHeader(record.TypeServerHello, len(shBody))
	mirror.AddBytes(shBody)
	mirror.AddMessageHeader(record.TypeEncryptedExtensions, len(eeBody))
	mirror.AddBytes(eeBody)
	thBeforeFinished := mirror.Snapshot()

	finishedKey := suite.FinishedKey(serverHSSecret)
	verifyData := suite.VerifyData(finishedKey, thBeforeFinished)
	layer.inbound = append(layer.inbound, record.Message{Type: record.TypeFinished, Body: verifyData})

	res, err = m.Step()
	require.NoError(t, err, "server Finished must verify")
	require.Equal(t, ResultHandshakeComplete, res)

	require.Len(t, layer.outbound, 2, "ClientHello then client Finished, no certificate flight in PSK mode")
	require.Equal(t, record.TypeFinished, layer.outbound[1].Type)

	mirror.AddMessageHeader(record.TypeFinished, len(verifyData))
	mirror.AddBytes(verifyData)
	clientFinishedKey := suite.FinishedKey(clientHSSecret)
	wantClientVerifyData := suite.VerifyData(clientFinishedKey, mirror.Snapshot())
	require.Equal(t, wantClientVerifyData, layer.outbound[1].Body)

	require.NotEmpty(t, m.session.ResumptionMasterSecret)
	require.NotEmpty(t, m.session.ClientApplicationTrafficSecret)
	require.NotEmpty(t, m.session.ServerApplicationTrafficSecret)
	require.Equal(t, 0x0304, int(m.session.TLSVersion))
}

// TestSessionIDEchoMismatchFails covers spec.md §8.9: the server MUST
// bitwise-echo legacy_session_id, and a mismatch is a fatal
// illegal_parameter, not a silent accept.
func TestSessionIDEchoMismatchFails(t *testing.T) {
	cfg := baseConfig()
	cfg.PSKModes = PSKExchangeModes{PSKDHEKEEnabled: true}

	layer := &fakeLayer{}
	trans := newFakeTranscriptHash()
	m := New(cfg, layer, trans)

	_, err := m.Step()
	require.NoError(t, err)

	shBody := buildServerHelloBody(t, []byte{0x01, 0x02, 0x03}, SuiteAES128GCMSHA256.ID, supportedVersionsExt(t))
	layer.inbound = append(layer.inbound, record.Message{Type: record.TypeServerHello, Body: shBody})

	_, err = m.Step()
	require.Error(t, err)
	var ae *alert.Error
	require.ErrorAs(t, err, &ae)
	require.Equal(t, alert.KindIllegalParameter, ae.Kind)
}

// TestModeDecisionRejectsNeitherPSKNorKeyShare covers the remaining
// branch of spec.md §8.8's mode-decision table: a ServerHello with
// neither pre_shared_key nor key_share is a protocol violation.
func TestModeDecisionRejectsNeitherPSKNorKeyShare(t *testing.T) {
	cfg := baseConfig()
	cfg.PSKModes = PSKExchangeModes{PSKDHEKEEnabled: true}

	layer := &fakeLayer{}
	trans := newFakeTranscriptHash()
	m := New(cfg, layer, trans)

	_, err := m.Step()
	require.NoError(t, err)

	shBody := buildServerHelloBody(t, m.legacySessionID, SuiteAES128GCMSHA256.ID, supportedVersionsExt(t))
	layer.inbound = append(layer.inbound, record.Message{Type: record.TypeServerHello, Body: shBody})

	_, err = m.Step()
	require.Error(t, err)
	var ae *alert.Error
	require.ErrorAs(t, err, &ae)
	require.Equal(t, alert.KindHandshakeFailure, ae.Kind)
}

// TestSecondHelloRetryRequestRejected covers spec.md §8.5: a second
// HelloRetryRequest in the same connection must fail with
// unexpected_message (invariant: hello_retry_request_count <= 1).
func TestSecondHelloRetryRequestRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.Groups = []kex.Group{kex.Default[0], kex.Default[1]}

	layer := &fakeLayer{}
	trans := newFakeTranscriptHash()
	m := New(cfg, layer, trans)
	m.helloRetryRequestCount = 1 // simulate one HRR already processed
	// An HRR that was processed would have set the group for the retried
	// ClientHello; the resent ClientHello looks that group up.
	m.offeredGroupID = kex.Default[0].ID()

	_, err := m.Step()
	require.NoError(t, err)

	hrrExt := append(append([]byte{}, supportedVersionsExt(t)...), keyShareHRRExt(t, uint16(kex.Default[1].ID()))...)
	shBody := buildServerHelloBody(t, m.legacySessionID, SuiteAES128GCMSHA256.ID, hrrExt)
	// Force the HRR random magic so Classify routes to the HRR branch.
	copy(shBody[2:34], hrrRandomMagicForTest(t))
	layer.inbound = append(layer.inbound, record.Message{Type: record.TypeServerHello, Body: shBody})

	_, err = m.Step()
	require.Error(t, err)
	var ae *alert.Error
	require.ErrorAs(t, err, &ae)
	require.Equal(t, alert.KindUnexpectedMessage, ae.Kind)
}

func keyShareHRRExt(t *testing.T, group uint16) []byte {
	t.Helper()
	body := make([]byte, 0, 2)
	bw := wire.NewWriter(body)
	require.NoError(t, bw.PutU16(group))
	return extHeader(t, 51, bw.Bytes())
}

func hrrRandomMagicForTest(t *testing.T) []byte {
	t.Helper()
	h := sha256.Sum256([]byte("HelloRetryRequest"))
	return h[:]
}
