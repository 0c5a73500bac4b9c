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
	"github.com/trustngotech/tls13client/internal/alert"
	"github.com/trustngotech/tls13client/internal/extension"
	"github.com/trustngotech/tls13client/internal/psk"
	"github.com/trustngotech/tls13client/internal/record"
	"github.com/trustngotech/tls13client/internal/wire"
)

// recvPostHandshakeMessage implements C7: it accepts either a
// NewSessionTicket (spec.md §4.8) or the SPEC_FULL.md-added KeyUpdate
// (RFC 8446 §4.6.3), the only two message types legal on this
// connection once the handshake is complete.
func (m *Machine) recvPostHandshakeMessage() (Result, error) {
	msg, err := m.layer.FetchHandshakeMessage(0)
	if err != nil {
		return 0, err
	}
	switch msg.Type {
	case record.TypeNewSessionTicket:
		if err := m.recvNewSessionTicket(msg.Body); err != nil {
			return 0, err
		}
		return ResultReceivedNewSessionTicket, nil
	case record.TypeKeyUpdate:
		return m.recvKeyUpdate(msg.Body)
	default:
		return 0, alert.New(alert.KindUnexpectedMessage, "unexpected post-handshake message type %v", msg.Type)
	}
}

// recvNewSessionTicket decodes a NewSessionTicket and derives its
// resumption key, per spec.md §4.8. Any previously stored ticket on
// this session is replaced.
func (m *Machine) recvNewSessionTicket(body []byte) error {
	r := wire.NewReader(body)
	lifetime, err := r.U32()
	if err != nil {
		return alert.Wrap(alert.KindDecodeError, err, "NewSessionTicket ticket_lifetime")
	}
	ageAdd, err := r.U32()
	if err != nil {
		return alert.Wrap(alert.KindDecodeError, err, "NewSessionTicket ticket_age_add")
	}
	nonce, err := r.Vec8(0, 255)
	if err != nil {
		return alert.Wrap(alert.KindDecodeError, err, "NewSessionTicket ticket_nonce")
	}
	blob, err := r.Vec16(1, 0xffff)
	if err != nil {
		return alert.Wrap(alert.KindDecodeError, err, "NewSessionTicket ticket")
	}
	extBlock, err := r.Vec16(0, 0xfffe)
	if err != nil {
		return alert.Wrap(alert.KindDecodeError, err, "NewSessionTicket extensions")
	}
	if !r.Done() {
		return alert.New(alert.KindDecodeError, "NewSessionTicket: trailing bytes")
	}

	tracker := extension.NewTracker(record.TypeNewSessionTicket)
	var allowEarlyData bool
	er := wire.NewReader(extBlock)
	for !er.Done() {
		code, err := er.U16()
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "NewSessionTicket extension type")
		}
		extBody, err := er.Vec16(0, 0xffff)
		if err != nil {
			return alert.Wrap(alert.KindDecodeError, err, "NewSessionTicket extension body")
		}
		if err := tracker.Mark(extension.Code(code)); err != nil {
			return err
		}
		if extension.Code(code) == extension.CodeEarlyData {
			if _, err := extension.ParseEarlyDataTicket(extBody); err != nil {
				return err
			}
			allowEarlyData = true
		}
	}

	key := m.cipherSuite.Suite.ResumptionKey(m.session.ResumptionMasterSecret, nonce)

	var receivedAt int64
	if m.cfg.NowUnixSecs != nil {
		if secs, ok := m.cfg.NowUnixSecs(); ok {
			receivedAt = secs
		}
	}

	pskModes := m.cfg.PSKModes
	ticket := &psk.Ticket{
		Blob:             append([]byte(nil), blob...),
		CipherSuiteID:    m.cipherSuite.ID,
		Suite:            m.cipherSuite.Suite,
		Key:              key,
		LifetimeSeconds:  lifetime,
		AgeAdd:           ageAdd,
		ReceivedUnixSecs: receivedAt,
		AllowEarlyData:   allowEarlyData,
		AllowsMode: func(pskDHEKEEnabled, pskKEEnabled bool) bool {
			return (pskDHEKEEnabled && pskModes.PSKDHEKEEnabled) || (pskKEEnabled && pskModes.PSKKEEnabled)
		},
	}
	m.session.Ticket = ticket

	m.logger.Debug("received NewSessionTicket")
	return nil
}

// recvKeyUpdate implements RFC 8446 §4.6.3 (a SPEC_FULL.md supplement
// beyond spec.md's core scope): a 1-byte body of update_not_requested
// (0) or update_requested (1). If the peer requested a reciprocal
// update, one is queued before control returns to the caller. The
// engine derives each next-generation application traffic secret
// itself (HKDF-Expand-Label with "traffic upd") and hands it to the
// record layer via SetInboundTransform (and, through sendKeyUpdate,
// SetOutboundTransform); deriving AEAD keys and IVs from that secret
// is the record layer's concern (spec.md §1).
func (m *Machine) recvKeyUpdate(body []byte) (Result, error) {
	if len(body) != 1 {
		return 0, alert.New(alert.KindDecodeError, "KeyUpdate body is %d bytes, want 1", len(body))
	}
	switch body[0] {
	case 0: // update_not_requested
	case 1: // update_requested
		if err := m.sendKeyUpdate(false); err != nil {
			return 0, err
		}
	default:
		return 0, alert.New(alert.KindIllegalParameter, "KeyUpdate request value %d is not 0 or 1", body[0])
	}

	nextSecret := m.cipherSuite.Suite.ExpandLabel(m.session.ServerApplicationTrafficSecret, "traffic upd", nil, m.cipherSuite.Suite.Length)
	m.session.ServerApplicationTrafficSecret = nextSecret
	if err := m.layer.SetInboundTransform(&TrafficTransform{dir: "server_application_traffic", Secret: nextSecret, Suite: m.cipherSuite}); err != nil {
		return 0, alert.Wrap(alert.KindInternalError, err, "installing updated inbound application transform")
	}

	m.logger.Debug("processed KeyUpdate")
	return ResultReceivedKeyUpdate, nil
}

// sendKeyUpdate emits a KeyUpdate message and rotates the client's own
// outbound application traffic secret (RFC 8446 §4.6.3). requestUpdate
// sets the request_update field; this engine only ever sends 0
// (update_not_requested) in response to a peer's request, never
// initiating its own rekey request.
func (m *Machine) sendKeyUpdate(requestUpdate bool) error {
	buf, err := m.layer.StartMessage(record.TypeKeyUpdate, 1)
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "allocating KeyUpdate buffer")
	}
	w := wire.NewWriter(buf)
	reqByte := uint8(0)
	if requestUpdate {
		reqByte = 1
	}
	if err := w.PutU8(reqByte); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "writing KeyUpdate body")
	}
	if err := m.layer.FinishMessage(w.Len()); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "flushing KeyUpdate")
	}

	nextSecret := m.cipherSuite.Suite.ExpandLabel(m.session.ClientApplicationTrafficSecret, "traffic upd", nil, m.cipherSuite.Suite.Length)
	m.session.ClientApplicationTrafficSecret = nextSecret
	if err := m.layer.SetOutboundTransform(&TrafficTransform{dir: "client_application_traffic", Secret: nextSecret, Suite: m.cipherSuite}); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "installing updated outbound application transform")
	}
	return nil
}
