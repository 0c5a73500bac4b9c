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
	"github.com/trustngotech/tls13client/internal/keyschedule"
	"github.com/trustngotech/tls13client/internal/kex"
	"github.com/trustngotech/tls13client/internal/psk"
	"github.com/trustngotech/tls13client/internal/record"
	"github.com/trustngotech/tls13client/internal/wire"
)

// sendClientHello builds and queues a ClientHello, generating a fresh
// ephemeral key-share for m.offeredGroupID. On a second call (after an
// HelloRetryRequest) it reuses clientRandom/legacySessionID, echoes the
// stored cookie, regenerates the key-share against the HRR-selected
// group (invariant §3.3), and — per RFC 8446 §4.1.2 — omits early_data
// and re-derives binders against the reset transcript.
func (m *Machine) sendClientHello() error {
	retry := m.helloRetryRequestCount > 0

	if !retry {
		rnd, err := randomBytes(m.cfg.Rand, 32)
		if err != nil {
			return err
		}
		copy(m.clientRandom[:], rnd)
	}
	if m.legacySessionID == nil {
		if m.cfg.MiddleboxCompat {
			sid, err := randomBytes(m.cfg.Rand, 32)
			if err != nil {
				return err
			}
			m.legacySessionID = sid
		} else {
			m.legacySessionID = []byte{}
		}
	}

	if !retry {
		if len(m.cfg.Groups) == 0 {
			return alert.New(alert.KindHandshakeFailure, "no key-exchange groups configured")
		}
		group := m.cfg.Groups[0]
		m.offeredGroupID = group.ID()
	}
	// On retry, m.offeredGroupID was already updated to the HRR's
	// selected_group by recvHelloRetryRequest; find that Group impl.
	group, ok := kex.ByID(m.cfg.Groups, m.offeredGroupID)
	if !ok {
		return alert.New(alert.KindHandshakeFailure, "HelloRetryRequest selected a group %v the client does not implement", m.offeredGroupID)
	}
	m.destroyEphemeral()
	pub, eph, err := group.Generate(kex.Rand)
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "generating key-share for group %v", m.offeredGroupID)
	}
	m.ephemeral = eph

	if !retry {
		selector := &psk.Selector{
			Ticket:            m.cfg.ResumptionTicket,
			External:          m.cfg.ExternalPSK,
			ResumptionEnabled: m.cfg.ResumptionTicket != nil,
			PSKDHEKEEnabled:   m.cfg.PSKModes.PSKDHEKEEnabled,
			PSKKEEnabled:      m.cfg.PSKModes.PSKKEEnabled,
			NowUnixSecs:       m.cfg.NowUnixSecs,
		}
		m.offeredPSKs = selector.Offerable()
	}

	capacity := 4096
	buf, err := m.layer.StartMessage(record.TypeClientHello, capacity)
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "allocating ClientHello buffer")
	}
	w := wire.NewWriter(buf)

	if err := w.PutU16(0x0303); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "ClientHello legacy_version")
	}
	if err := w.PutBytes(m.clientRandom[:]); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "ClientHello random")
	}
	if err := w.PutVec8(m.legacySessionID); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "ClientHello legacy_session_id")
	}

	cipherSuitesLenField, err := w.Reserve(2)
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "ClientHello cipher_suites length")
	}
	csStart := w.Len()
	for _, cs := range m.cfg.CipherSuites {
		if err := w.PutU16(cs.ID); err != nil {
			return alert.Wrap(alert.KindInternalError, err, "ClientHello cipher_suites")
		}
	}
	cipherSuitesLenField[0], cipherSuitesLenField[1] = byte((w.Len()-csStart)>>8), byte(w.Len()-csStart)

	if err := w.PutVec8([]byte{0x00}); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "ClientHello legacy_compression_methods")
	}

	extLenField, err := w.Reserve(2)
	if err != nil {
		return alert.Wrap(alert.KindInternalError, err, "ClientHello extensions length")
	}
	extStart := w.Len()

	if _, err := extension.EncodeSupportedVersions(w, m.cfg.MinTLSVersion); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "encoding supported_versions")
	}
	if _, err := extension.EncodeSupportedGroups(w, groupIDs(m.cfg.Groups)); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "encoding supported_groups")
	}
	if _, err := extension.EncodeKeyShare(w, m.offeredGroupID, pub); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "encoding key_share")
	}
	if len(m.cfg.SignatureAlgs) > 0 {
		if _, err := extension.EncodeSignatureAlgorithms(w, m.cfg.SignatureAlgs); err != nil {
			return alert.Wrap(alert.KindInternalError, err, "encoding signature_algorithms")
		}
	}
	if _, err := extension.EncodeServerName(w, m.cfg.ServerName); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "encoding server_name")
	}
	if _, err := extension.EncodeALPN(w, m.cfg.ALPN); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "encoding alpn")
	}
	if len(m.cookie) > 0 {
		if _, err := extension.EncodeCookie(w, m.cookie); err != nil {
			return alert.Wrap(alert.KindInternalError, err, "encoding cookie")
		}
	}
	if _, err := extension.EncodePSKKeyExchangeModes(w, m.cfg.PSKModes.PSKKEEnabled, m.cfg.PSKModes.PSKDHEKEEnabled); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "encoding psk_key_exchange_modes")
	}
	// RFC 8446 §4.1.2: a ClientHello sent in response to a
	// HelloRetryRequest MUST NOT offer early_data again. Early data is
	// only offered when the first offered PSK is a resumption ticket
	// whose AllowEarlyData flag is set.
	m.offeredEarlyData = m.cfg.EarlyDataEnabled && !retry &&
		len(m.offeredPSKs) > 0 && m.offeredPSKs[0].Kind == psk.KindResumption &&
		m.cfg.ResumptionTicket.AllowEarlyData
	if m.offeredEarlyData {
		if _, err := extension.EncodeEarlyData(w); err != nil {
			return alert.Wrap(alert.KindInternalError, err, "encoding early_data")
		}
	}

	// pre_shared_key MUST be the last extension (invariant §3.4).
	var reservation *extension.PreSharedKeyReservation
	var suffixLen int
	if len(m.offeredPSKs) > 0 {
		ids := psk.ToExtensionIdentities(m.offeredPSKs)
		reservation, err = extension.EncodePreSharedKeyIdentities(w, ids)
		if err != nil {
			return alert.Wrap(alert.KindInternalError, err, "encoding pre_shared_key identities")
		}
		for _, id := range ids {
			suffixLen += 1 + id.BinderLen
		}
	}

	extLenField[0], extLenField[1] = byte((w.Len()-extStart)>>8), byte(w.Len()-extStart)

	total := w.Len()
	m.trans.AddMessageHeader(record.TypeClientHello, total)

	if reservation != nil {
		truncatedLen := total - suffixLen
		m.trans.AddBytes(w.Bytes()[:truncatedLen])
		partial := m.trans.Snapshot()

		binderKeys := make([][]byte, len(m.offeredPSKs))
		for i, o := range m.offeredPSKs {
			sched := &keyschedule.Schedule{Suite: o.Suite}
			sched.EarlySecret(o.Secret)
			if o.Kind == psk.KindExternal {
				binderKeys[i] = sched.ExternalBinderKey()
			} else {
				binderKeys[i] = sched.ResumptionBinderKey()
			}
		}
		binders := psk.ComputeBinders(m.offeredPSKs, binderKeys, partial)
		for i, b := range binders {
			copy(reservation.Binders[i], b)
		}
		m.trans.AddBytes(w.Bytes()[truncatedLen:])
	} else {
		m.trans.AddBytes(w.Bytes())
	}

	if m.offeredEarlyData {
		m.transcriptThroughClientHello = m.trans.Snapshot()
	}

	if err := m.layer.FinishMessage(w.Len()); err != nil {
		return alert.Wrap(alert.KindInternalError, err, "flushing ClientHello")
	}

	if retry {
		m.logger.Debug("resent ClientHello after HelloRetryRequest")
	} else {
		m.logger.Debug("sent ClientHello")
	}
	return nil
}

func groupIDs(groups []kex.Group) []kex.NamedGroup {
	out := make([]kex.NamedGroup, len(groups))
	for i, g := range groups {
		out[i] = g.ID()
	}
	return out
}
