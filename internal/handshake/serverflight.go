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
	"bytes"
	"crypto/subtle"

	"go.uber.org/zap"

	"github.com/trustngotech/tls13client/internal/alert"
	"github.com/trustngotech/tls13client/internal/extension"
	"github.com/trustngotech/tls13client/internal/keyschedule"
	"github.com/trustngotech/tls13client/internal/psk"
	"github.com/trustngotech/tls13client/internal/record"
	"github.com/trustngotech/tls13client/internal/serverhello"
	"github.com/trustngotech/tls13client/internal/wire"
)

type shOutcome int

const (
	shOutcomeNormal shOutcome = iota
	shOutcomeHelloRetryRequest
	shOutcomeDowngrade
)

// TrafficTransform is the concrete record.Transform value this engine
// hands to the record layer at every key-schedule transition point; it
// carries the derived traffic secret and cipher suite so a concrete
// record-layer implementation can derive AEAD keys and IVs from it
// (spec.md §1 scopes AEAD key/IV derivation itself to that
// collaborator, not to this package).
type TrafficTransform struct {
	dir    string
	Secret []byte
	Suite  CipherSuite
}

func (t *TrafficTransform) Direction() string { return t.dir }

// recvServerHello fetches and classifies the first response to
// ClientHello (C5), dispatching to HelloRetryRequest or normal
// ServerHello handling.
func (m *Machine) recvServerHello() (shOutcome, error) {
	msg, err := m.layer.FetchHandshakeMessage(record.TypeServerHello)
	if err != nil {
		return 0, err
	}

	sh, err := serverhello.Parse(msg.Body)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(sh.SessionIDEcho, m.legacySessionID) {
		return 0, alert.New(alert.KindIllegalParameter, "ServerHello legacy_session_id_echo does not match the session id the client sent")
	}

	outcome, err := serverhello.Classify(sh, m.cfg.MinTLSVersion)
	if err != nil {
		return 0, err
	}

	switch outcome {
	case serverhello.CaseDowngradeHandoff:
		m.destroyEphemeral()
		m.session.TLSVersion = sh.LegacyVersion
		return shOutcomeDowngrade, nil
	case serverhello.CaseHelloRetryRequest:
		if err := m.recvHelloRetryRequest(msg, sh); err != nil {
			return 0, err
		}
		return shOutcomeHelloRetryRequest, nil
	default:
		if err := m.recvNormalServerHello(msg, sh); err != nil {
			return 0, err
		}
		return shOutcomeNormal, nil
	}
}

// recvHelloRetryRequest implements spec.md §4.6 case 3 / §4.7's HRR
// branch: validates hello_retry_request_count <= 1 (testable property
// #5), resets the transcript to RFC 8446 §4.4.1's synthetic
// message_hash, rehashes the HRR message, and extracts the new
// selected_group/cookie the next ClientHello must use.
func (m *Machine) recvHelloRetryRequest(msg record.Message, sh serverhello.ServerHello) error {
	if m.helloRetryRequestCount >= 1 {
		return alert.New(alert.KindUnexpectedMessage, "received a second HelloRetryRequest in one connection")
	}
	m.helloRetryRequestCount++

	m.trans.ResetForHRR()
	m.trans.AddMessageHeader(record.TypeServerHello, len(msg.Body))
	m.trans.AddBytes(msg.Body)

	tracker := extension.NewTracker(extension.HelloRetryRequest)
	var sawSupportedVersions, sawKeyShare bool

	r := wire.NewReader(sh.Extensions)
	for !r.Done() {
		code, err := r.U16()
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "HelloRetryRequest extension type")
		}
		body, err := r.Vec16(0, 0xffff)
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "HelloRetryRequest extension body")
		}
		if err := tracker.Mark(extension.Code(code)); err != nil {
			return err
		}
		switch extension.Code(code) {
		case extension.CodeSupportedVersions:
			if _, err := extension.ParseSupportedVersionsServerHello(body); err != nil {
				return err
			}
			sawSupportedVersions = true
		case extension.CodeKeyShare:
			group, err := extension.ParseKeyShareHRR(body, m.offeredGroupID, groupIDs(m.cfg.Groups))
			if err != nil {
				return err
			}
			m.offeredGroupID = group
			sawKeyShare = true
		case extension.CodeCookie:
			cookie, err := extension.ParseCookie(body)
			if err != nil {
				return err
			}
			m.cookie = cookie
		}
	}
	if !sawSupportedVersions {
		return alert.New(alert.KindDecodeError, "HelloRetryRequest missing required supported_versions extension")
	}
	if !sawKeyShare && len(m.cookie) == 0 {
		return alert.New(alert.KindIllegalParameter, "HelloRetryRequest changed nothing (no key_share, no cookie)")
	}
	return nil
}

// recvNormalServerHello implements spec.md §4.4/§4.7's ServerHello
// branch: negotiates the cipher suite and key-exchange mode, completes
// ECDHE, derives the handshake secrets, and installs the inbound
// handshake transform.
func (m *Machine) recvNormalServerHello(msg record.Message, sh serverhello.ServerHello) error {
	copy(m.serverRandom[:], sh.Random[:])

	tracker := extension.NewTracker(record.TypeServerHello)
	var sawVersion, sawKeyShare, sawPSK bool
	var keyShareEntry extension.KeyShareEntry
	var selectedIdentity uint16

	r := wire.NewReader(sh.Extensions)
	for !r.Done() {
		code, err := r.U16()
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "ServerHello extension type")
		}
		body, err := r.Vec16(0, 0xffff)
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "ServerHello extension body")
		}
		if err := tracker.Mark(extension.Code(code)); err != nil {
			return err
		}
		switch extension.Code(code) {
		case extension.CodeSupportedVersions:
			if _, err := extension.ParseSupportedVersionsServerHello(body); err != nil {
				return err
			}
			sawVersion = true
		case extension.CodeKeyShare:
			entry, err := extension.ParseKeyShareServerHello(body, m.offeredGroupID)
			if err != nil {
				return err
			}
			keyShareEntry = entry
			sawKeyShare = true
		case extension.CodePreSharedKey:
			idx, err := extension.ParsePreSharedKeyServerHello(body, len(m.offeredPSKs))
			if err != nil {
				return err
			}
			selectedIdentity = idx
			sawPSK = true
		}
	}
	if !sawVersion {
		return alert.New(alert.KindDecodeError, "ServerHello missing required supported_versions extension")
	}

	// Mode decision table (spec.md §8.8): (PSK, key_share) -> mode.
	var mode KeyExchangeMode
	switch {
	case !sawPSK && !sawKeyShare:
		return alert.New(alert.KindHandshakeFailure, "ServerHello offered neither pre_shared_key nor key_share")
	case sawPSK && !sawKeyShare:
		mode = ModePSK
		if !m.cfg.PSKModes.PSKKEEnabled {
			return alert.New(alert.KindHandshakeFailure, "server selected pure-PSK mode, which is not locally enabled")
		}
	case !sawPSK && sawKeyShare:
		mode = ModeEphemeral
	default:
		mode = ModePSKEphemeral
		if !m.cfg.PSKModes.PSKDHEKEEnabled {
			return alert.New(alert.KindHandshakeFailure, "server selected psk_ephemeral mode, which is not locally enabled")
		}
	}
	m.keyExchangeMode = mode

	if sawPSK {
		selected, ok := psk.Selected(m.offeredPSKs, int(selectedIdentity))
		if !ok {
			return alert.New(alert.KindIllegalParameter, "pre_shared_key selected_identity %d is out of range", selectedIdentity)
		}
		m.selectedPSK = &selected
		m.pskSelectIdx = int(selectedIdentity)
	}

	var negotiated CipherSuite
	var found bool
	for _, cs := range m.cfg.CipherSuites {
		if cs.ID == sh.CipherSuite {
			negotiated = cs
			found = true
			break
		}
	}
	if !found {
		return alert.New(alert.KindHandshakeFailure, "server selected cipher suite 0x%04x, which the client never offered", sh.CipherSuite)
	}
	m.cipherSuite = negotiated
	m.session.CipherSuite = negotiated
	m.session.TLSVersion = 0x0304

	var ecdheSecret []byte
	if sawKeyShare {
		ss, err := m.ephemeral.SharedSecret(keyShareEntry.KeyExchange)
		if err != nil {
			return alert.Wrap(alert.KindInternalError, err, "completing ECDHE with the server's key_share")
		}
		ecdheSecret = ss
	}
	m.destroyEphemeral()

	var pskSecret []byte
	if m.selectedPSK != nil {
		pskSecret = m.selectedPSK.Secret
	}

	m.schedule = &keyschedule.Schedule{Suite: negotiated.Suite}
	m.schedule.EarlySecret(pskSecret)
	m.schedule.HandshakeSecret(ecdheSecret)

	m.trans.AddMessageHeader(record.TypeServerHello, len(msg.Body))
	m.trans.AddBytes(msg.Body)
	thThroughSH := m.trans.Snapshot()
	m.transcriptThroughServerHello = thThroughSH

	m.clientHandshakeTrafficSecret = m.schedule.ClientHandshakeTrafficSecret(thThroughSH)
	m.serverHandshakeTrafficSecret = m.schedule.ServerHandshakeTrafficSecret(thThroughSH)

	if m.offeredEarlyData {
		m.clientEarlyTrafficSecret = m.schedule.ClientEarlyTrafficSecret(m.transcriptThroughClientHello)
	}

	// Install the handshake inbound transform now; the record layer
	// must decrypt starting with the very next record
	// (EncryptedExtensions), per spec.md §4.7's key-schedule
	// transition points.
	if err := m.layer.SetInboundTransform(&TrafficTransform{dir: "server_handshake_traffic", Secret: m.serverHandshakeTrafficSecret, Suite: negotiated}); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "installing handshake inbound transform")
	}

	m.logger.Debug("processed ServerHello")
	return nil
}

// recvEncryptedExtensions implements spec.md §4.4's EncryptedExtensions
// parsing.
func (m *Machine) recvEncryptedExtensions() error {
	msg, err := m.layer.FetchHandshakeMessage(record.TypeEncryptedExtensions)
	if err != nil {
		return err
	}
	m.trans.AddMessageHeader(record.TypeEncryptedExtensions, len(msg.Body))
	m.trans.AddBytes(msg.Body)

	r := wire.NewReader(msg.Body)
	body, err := r.Vec16(0, 0xffff)
	if err != nil {
		return alert.Wrap(alert.KindDecodeError, err, "EncryptedExtensions extensions block")
	}
	if !r.Done() {
		return alert.New(alert.KindDecodeError, "EncryptedExtensions: trailing bytes")
	}

	if m.offeredEarlyData {
		m.session.EarlyData = EarlyDataOffered
	} else {
		m.session.EarlyData = EarlyDataNotOffered
	}

	tracker := extension.NewTracker(record.TypeEncryptedExtensions)
	er := wire.NewReader(body)
	for !er.Done() {
		code, err := er.U16()
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "EncryptedExtensions extension type")
		}
		extBody, err := er.Vec16(0, 0xffff)
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "EncryptedExtensions extension body")
		}
		if err := tracker.Mark(extension.Code(code)); err != nil {
			return err
		}
		switch extension.Code(code) {
		case extension.CodeALPN:
			proto, err := extension.ParseALPN(extBody, m.cfg.ALPN)
			if err != nil {
				return err
			}
			m.session.NegotiatedALPN = proto
		case extension.CodeEarlyData:
			if err := extension.ParseEarlyDataEncryptedExtensions(extBody); err != nil {
				return err
			}
			if !m.offeredEarlyData {
				return alert.New(alert.KindIllegalParameter, "server accepted early_data the client never offered")
			}
			m.session.EarlyData = EarlyDataAccepted
		}
	}

	m.logger.Debug("processed EncryptedExtensions", zap.String("early_data", m.session.EarlyData.String()))
	return nil
}

// recvCertificateRequestOrCertificate fetches the next message, which
// may legally be either CertificateRequest or Certificate (spec.md
// §4.7's optional CERTIFICATE_REQUEST state).
func (m *Machine) recvCertificateRequestOrCertificate() (state, error) {
	msg, err := m.layer.FetchHandshakeMessage(0)
	if err != nil {
		return 0, err
	}
	switch msg.Type {
	case record.TypeCertificateRequest:
		m.trans.AddMessageHeader(record.TypeCertificateRequest, len(msg.Body))
		m.trans.AddBytes(msg.Body)
		if err := m.parseCertificateRequest(msg.Body); err != nil {
			return 0, err
		}
		return stateAwaitCertificate, nil
	case record.TypeCertificate:
		if err := m.processServerCertificate(msg); err != nil {
			return 0, err
		}
		return stateAwaitCertificateVerify, nil
	default:
		return 0, alert.New(alert.KindUnexpectedMessage, "expected CertificateRequest or Certificate, got %v", msg.Type)
	}
}

func (m *Machine) parseCertificateRequest(body []byte) error {
	r := wire.NewReader(body)
	ctx, err := r.Vec8(0, 255)
	if err != nil {
		return alert.Wrap(alert.KindDecodeError, err, "CertificateRequest certificate_request_context")
	}
	extBlock, err := r.Vec16(0, 0xffff)
	if err != nil {
		return alert.Wrap(alert.KindDecodeError, err, "CertificateRequest extensions")
	}
	if !r.Done() {
		return alert.New(alert.KindDecodeError, "CertificateRequest: trailing bytes")
	}

	tracker := extension.NewTracker(record.TypeCertificateRequest)
	var sawSigAlgs bool
	er := wire.NewReader(extBlock)
	for !er.Done() {
		code, err := er.U16()
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "CertificateRequest extension type")
		}
		extBody, err := er.Vec16(0, 0xffff)
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "CertificateRequest extension body")
		}
		if err := tracker.Mark(extension.Code(code)); err != nil {
			return err
		}
		if extension.Code(code) == extension.CodeSignatureAlgorithms {
			if _, err := extension.ParseSignatureAlgorithmsCertificateRequest(extBody); err != nil {
				return err
			}
			sawSigAlgs = true
		}
	}
	if !sawSigAlgs {
		return alert.Wrap(alert.KindDecodeError, extension.ErrMissingRequiredExtension, "CertificateRequest missing required signature_algorithms")
	}

	m.clientAuth = true
	m.certRequestContext = append([]byte(nil), ctx...)
	return nil
}

// recvServerCertificate handles the Certificate message when it
// arrives directly (no CertificateRequest was seen first).
func (m *Machine) recvServerCertificate() error {
	msg, err := m.layer.FetchHandshakeMessage(record.TypeCertificate)
	if err != nil {
		return err
	}
	return m.processServerCertificate(msg)
}

func (m *Machine) processServerCertificate(msg record.Message) error {
	m.trans.AddMessageHeader(record.TypeCertificate, len(msg.Body))
	m.trans.AddBytes(msg.Body)
	if m.cfg.ServerAuth != nil {
		if err := m.cfg.ServerAuth.VerifyCertificateChain(msg.Body, m.cfg.ServerName); err != nil {
			return alert.Wrap(alert.KindHandshakeFailure, err, "server certificate chain validation failed")
		}
	}
	return nil
}

// recvServerCertificateVerify validates the server's CertificateVerify
// signature over the transcript hash up to (but excluding) this
// message.
func (m *Machine) recvServerCertificateVerify() error {
	msg, err := m.layer.FetchHandshakeMessage(record.TypeCertificateVerify)
	if err != nil {
		return err
	}
	thThroughCert := m.trans.Snapshot()
	if m.cfg.ServerAuth != nil {
		if err := m.cfg.ServerAuth.VerifyCertificateVerify(msg.Body, thThroughCert); err != nil {
			return alert.Wrap(alert.KindHandshakeFailure, err, "server CertificateVerify signature invalid")
		}
	}
	m.trans.AddMessageHeader(record.TypeCertificateVerify, len(msg.Body))
	m.trans.AddBytes(msg.Body)
	return nil
}

// recvServerFinished validates the server's Finished verify_data and
// performs the master-secret / application-traffic-secret transition
// (spec.md §4.7).
func (m *Machine) recvServerFinished() error {
	msg, err := m.layer.FetchHandshakeMessage(record.TypeFinished)
	if err != nil {
		return err
	}
	thBeforeFinished := m.trans.Snapshot()
	finishedKey := m.schedule.Suite.FinishedKey(m.serverHandshakeTrafficSecret)
	expected := m.schedule.Suite.VerifyData(finishedKey, thBeforeFinished)
	if subtle.ConstantTimeCompare(expected, msg.Body) != 1 {
		return alert.New(alert.KindHandshakeFailure, "server Finished verify_data does not match")
	}

	m.trans.AddMessageHeader(record.TypeFinished, len(msg.Body))
	m.trans.AddBytes(msg.Body)

	m.schedule.MasterSecret()
	thThroughServerFin := m.trans.Snapshot()
	m.session.ClientApplicationTrafficSecret = m.schedule.ClientApplicationTrafficSecret(thThroughServerFin)
	m.session.ServerApplicationTrafficSecret = m.schedule.ServerApplicationTrafficSecret(thThroughServerFin)

	if err := m.layer.SetInboundTransform(&TrafficTransform{dir: "server_application_traffic", Secret: m.session.ServerApplicationTrafficSecret, Suite: m.cipherSuite}); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "installing application inbound transform")
	}

	m.logger.Debug("processed server Finished")
	return nil
}

// sendEndOfEarlyData emits the (empty) EndOfEarlyData handshake
// message under the client's early traffic secret, per RFC 8446 §4.5 —
// only reached when the server accepted early data.
func (m *Machine) sendEndOfEarlyData() error {
	if err := m.layer.SetOutboundTransform(&TrafficTransform{dir: "client_early_traffic", Secret: m.clientEarlyTrafficSecret, Suite: m.cipherSuite}); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "installing client early-traffic outbound transform")
	}
	buf, err := m.layer.StartMessage(record.TypeEndOfEarlyData, 0)
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "allocating EndOfEarlyData buffer")
	}
	m.trans.AddMessageHeader(record.TypeEndOfEarlyData, 0)
	m.trans.AddBytes(buf[:0])
	if err := m.layer.FinishMessage(0); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "flushing EndOfEarlyData")
	}
	return nil
}

// sendClientCertificateFlight sends the client's Certificate and
// CertificateVerify when the server requested client authentication
// (RFC 8446 §4.4.2-4.4.3). This is the first message sequence the
// client sends under encryption, so the handshake outbound transform
// is installed here if it has not been already.
func (m *Machine) sendClientCertificateFlight() error {
	if err := m.installHandshakeOutboundTransform(); err != nil {
		return err
	}

	var certBody []byte
	if m.cfg.Credentials != nil {
		body, err := m.cfg.Credentials.CertificateMessageBody(m.certRequestContext)
		if err != nil {
			return alert.Wrap(alert.KindInternalError, err, "building client Certificate message")
		}
		certBody = body
	} else {
		// No client credentials configured: send an empty certificate
		// list, per RFC 8446 §4.4.2's allowance for clients without a
		// certificate to offer.
		w := wire.NewWriter(make([]byte, 0, 1+len(m.certRequestContext)+3))
		if err := w.PutVec8(m.certRequestContext); err != nil {
			return alert.Wrap(alert.KindInternalError, err, "encoding empty Certificate request context")
		}
		if err := w.PutU24(0); err != nil {
			return alert.Wrap(alert.KindInternalError, err, "encoding empty Certificate list")
		}
		certBody = w.Bytes()
	}

	buf, err := m.layer.StartMessage(record.TypeCertificate, len(certBody))
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "allocating client Certificate buffer")
	}
	cw := wire.NewWriter(buf)
	if err := cw.PutBytes(certBody); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "writing client Certificate body")
	}
	m.trans.AddMessageHeader(record.TypeCertificate, cw.Len())
	m.trans.AddBytes(cw.Bytes())
	if err := m.layer.FinishMessage(cw.Len()); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "flushing client Certificate")
	}

	if m.cfg.Credentials == nil {
		// Empty certificate list: RFC 8446 §4.4.2's note that
		// CertificateVerify MUST NOT be sent when Certificate is empty.
		return nil
	}

	thThroughCert := m.trans.Snapshot()
	sig, err := m.cfg.Credentials.SignCertificateVerify(thThroughCert)
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "signing client CertificateVerify")
	}
	cvBuf, err := m.layer.StartMessage(record.TypeCertificateVerify, len(sig))
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "allocating client CertificateVerify buffer")
	}
	cvw := wire.NewWriter(cvBuf)
	if err := cvw.PutBytes(sig); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "writing client CertificateVerify body")
	}
	m.trans.AddMessageHeader(record.TypeCertificateVerify, cvw.Len())
	m.trans.AddBytes(cvw.Bytes())
	if err := m.layer.FinishMessage(cvw.Len()); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "flushing client CertificateVerify")
	}
	return nil
}

// installHandshakeOutboundTransform installs the handshake outbound
// transform the first time the client is about to send a message under
// the handshake traffic secret (spec.md §4.7): its Certificate, or its
// Finished when no client certificate flight is sent. EndOfEarlyData,
// which precedes both, is sent under the early traffic transform and
// does not install this one.
func (m *Machine) installHandshakeOutboundTransform() error {
	if m.handshakeOutboundInstalled {
		return nil
	}
	if err := m.layer.SetOutboundTransform(&TrafficTransform{dir: "client_handshake_traffic", Secret: m.clientHandshakeTrafficSecret, Suite: m.cipherSuite}); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "installing handshake outbound transform")
	}
	m.handshakeOutboundInstalled = true
	return nil
}

// sendClientFinished sends the client's Finished message, completing
// the handshake: it derives and sends verify_data over the transcript
// through (but excluding) this message, then transitions to
// application traffic outbound and computes the resumption master
// secret (spec.md §4.7, §4.8).
func (m *Machine) sendClientFinished() error {
	if err := m.installHandshakeOutboundTransform(); err != nil {
		return err
	}

	thBeforeClientFin := m.trans.Snapshot()
	finishedKey := m.schedule.Suite.FinishedKey(m.clientHandshakeTrafficSecret)
	verifyData := m.schedule.Suite.VerifyData(finishedKey, thBeforeClientFin)

	buf, err := m.layer.StartMessage(record.TypeFinished, len(verifyData))
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "allocating client Finished buffer")
	}
	fw := wire.NewWriter(buf)
	if err := fw.PutBytes(verifyData); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "writing client Finished body")
	}
	m.trans.AddMessageHeader(record.TypeFinished, fw.Len())
	m.trans.AddBytes(fw.Bytes())
	if err := m.layer.FinishMessage(fw.Len()); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "flushing client Finished")
	}

	thThroughClientFin := m.trans.Snapshot()
	m.transcriptThroughClientFin = thThroughClientFin
	m.session.ResumptionMasterSecret = m.schedule.ResumptionMasterSecret(thThroughClientFin)

	if err := m.layer.SetOutboundTransform(&TrafficTransform{dir: "client_application_traffic", Secret: m.session.ClientApplicationTrafficSecret, Suite: m.cipherSuite}); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "installing application outbound transform")
	}

	m.logger.Debug("sent client Finished; handshake complete")
	return nil
}
