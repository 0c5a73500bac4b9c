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
	"crypto/rand"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/trustngotech/tls13client/internal/alert"
	"github.com/trustngotech/tls13client/internal/kex"
	"github.com/trustngotech/tls13client/internal/keyschedule"
	"github.com/trustngotech/tls13client/internal/psk"
	"github.com/trustngotech/tls13client/internal/record"
)

// Result is the non-fatal outcome of one Step call (spec.md §6
// "Upward (exposed)").
type Result int

const (
	// ResultOK means the handshake (or a post-handshake idle tick)
	// completed this call with nothing further to report.
	ResultOK Result = iota
	// ResultWantIO means the record layer could not complete a read
	// or write; the caller must reinvoke Step once more I/O is
	// possible.
	ResultWantIO
	// ResultDowngradeHandoff means the server selected <=TLS 1.2; the
	// connection's ephemeral key material has been destroyed and the
	// caller must hand the connection to a TLS <=1.2 implementation.
	ResultDowngradeHandoff
	// ResultHandshakeComplete means application traffic keys are now
	// installed in both directions (spec.md §8.11's "handshake_over").
	ResultHandshakeComplete
	// ResultReceivedNewSessionTicket is the non-fatal post-handshake
	// signal telling the caller to persist Session.Ticket.
	ResultReceivedNewSessionTicket
	// ResultReceivedKeyUpdate is the SPEC_FULL.md supplement: a
	// post-handshake KeyUpdate was processed (and, if it requested
	// one, a reciprocal KeyUpdate was already queued outbound).
	ResultReceivedKeyUpdate
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultWantIO:
		return "want_io"
	case ResultDowngradeHandoff:
		return "downgrade_handoff"
	case ResultHandshakeComplete:
		return "handshake_complete"
	case ResultReceivedNewSessionTicket:
		return "received_new_session_ticket"
	case ResultReceivedKeyUpdate:
		return "received_key_update"
	default:
		return "unknown_result"
	}
}

type state int

const (
	stateSendClientHello state = iota
	stateAwaitServerHello
	stateSendCCSBeforeSecondClientHello
	stateAwaitEncryptedExtensions
	stateAwaitCertificateRequestOrCertificateOrFinished
	stateAwaitCertificate
	stateAwaitCertificateVerify
	stateAwaitServerFinished
	stateSendEndOfEarlyData
	stateSendClientCertificateFlight
	stateSendCCSAfterServerFinished
	stateSendClientFinished
	stateHandshakeDone
	statePostHandshake
	stateDowngradeHandoff
	stateFailed
)

// Machine drives one connection's TLS 1.3 client handshake. It is not
// safe for concurrent use; spec.md §5 models it as single-threaded and
// cooperative over one connection.
type Machine struct {
	cfg    *Config
	layer  record.Layer
	trans  record.TranscriptHash
	logger *zap.Logger

	state state

	clientRandom    [32]byte
	serverRandom    [32]byte
	legacySessionID []byte

	offeredGroupID kex.NamedGroup
	ephemeral      kex.Ephemeral

	cookie []byte

	helloRetryRequestCount int
	offeredEarlyData       bool

	cipherSuite     CipherSuite
	keyExchangeMode KeyExchangeMode

	offeredPSKs  []psk.Offered
	selectedPSK  *psk.Offered
	pskSelectIdx int

	clientAuth         bool
	certRequestContext []byte

	schedule *keyschedule.Schedule

	transcriptThroughServerHello []byte
	transcriptThroughClientFin   []byte

	clientHandshakeTrafficSecret []byte
	serverHandshakeTrafficSecret []byte
	clientEarlyTrafficSecret     []byte

	transcriptThroughClientHello []byte

	handshakeOutboundInstalled bool

	session Session

	ccsBeforeSecondCH bool
}

// New constructs a Machine ready to begin the handshake. layer and
// trans are the record-layer and transcript-hash collaborators this
// connection was given (spec.md §1, out of scope for this module).
func New(cfg *Config, layer record.Layer, trans record.TranscriptHash) *Machine {
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	return &Machine{
		cfg:    cfg,
		layer:  layer,
		trans:  trans,
		logger: cfg.logger(),
		state:  stateSendClientHello,
	}
}

// Session returns the negotiated session accumulated so far. Fields
// are only meaningful once the corresponding handshake phase has
// completed; callers should wait for ResultHandshakeComplete before
// trusting ClientApplicationTrafficSecret/ServerApplicationTrafficSecret.
func (m *Machine) Session() *Session { return &m.session }

// Step runs the state machine until it either completes a unit of
// work with nothing further to report, needs more I/O, or reaches a
// point the caller must act on (handoff, new ticket, key update, or a
// fatal error). It is safe to call again after ResultWantIO once more
// I/O is possible.
func (m *Machine) Step() (Result, error) {
	for {
		switch m.state {
		case stateFailed:
			return ResultOK, alert.New(alert.KindInternalError, "handshake: Step called again after a fatal error")

		case stateSendClientHello:
			if err := m.sendClientHello(); err != nil {
				return m.fail(err)
			}
			m.state = stateAwaitServerHello

		case stateAwaitServerHello:
			outcome, err := m.recvServerHello()
			if m.wantIO(err) {
				return ResultWantIO, nil
			}
			if err != nil {
				return m.fail(err)
			}
			switch outcome {
			case shOutcomeHelloRetryRequest:
				if m.cfg.MiddleboxCompat && !m.ccsBeforeSecondCH {
					m.state = stateSendCCSBeforeSecondClientHello
				} else {
					m.state = stateSendClientHello
				}
			case shOutcomeDowngrade:
				m.state = stateDowngradeHandoff
				return ResultDowngradeHandoff, nil
			case shOutcomeNormal:
				m.state = stateAwaitEncryptedExtensions
			}

		case stateSendCCSBeforeSecondClientHello:
			if err := m.layer.WriteChangeCipherSpec(); err != nil {
				if m.wantIO(err) {
					return ResultWantIO, nil
				}
				return m.fail(alert.Wrap(alert.KindInternalError, err, "writing middlebox-compat ChangeCipherSpec before second ClientHello"))
			}
			m.ccsBeforeSecondCH = true
			m.state = stateSendClientHello

		case stateAwaitEncryptedExtensions:
			err := m.recvEncryptedExtensions()
			if m.wantIO(err) {
				return ResultWantIO, nil
			}
			if err != nil {
				return m.fail(err)
			}
			if m.keyExchangeMode == ModePSK {
				m.state = stateAwaitServerFinished
			} else {
				m.state = stateAwaitCertificateRequestOrCertificateOrFinished
			}

		case stateAwaitCertificateRequestOrCertificateOrFinished:
			next, err := m.recvCertificateRequestOrCertificate()
			if m.wantIO(err) {
				return ResultWantIO, nil
			}
			if err != nil {
				return m.fail(err)
			}
			m.state = next

		case stateAwaitCertificate:
			err := m.recvServerCertificate()
			if m.wantIO(err) {
				return ResultWantIO, nil
			}
			if err != nil {
				return m.fail(err)
			}
			m.state = stateAwaitCertificateVerify

		case stateAwaitCertificateVerify:
			err := m.recvServerCertificateVerify()
			if m.wantIO(err) {
				return ResultWantIO, nil
			}
			if err != nil {
				return m.fail(err)
			}
			m.state = stateAwaitServerFinished

		case stateAwaitServerFinished:
			err := m.recvServerFinished()
			if m.wantIO(err) {
				return ResultWantIO, nil
			}
			if err != nil {
				return m.fail(err)
			}
			m.state = m.nextStateAfterServerFinished()

		case stateSendEndOfEarlyData:
			if err := m.sendEndOfEarlyData(); err != nil {
				return m.fail(err)
			}
			if m.clientAuth {
				m.state = stateSendClientCertificateFlight
			} else if m.cfg.MiddleboxCompat && !m.ccsBeforeSecondCH {
				m.state = stateSendCCSAfterServerFinished
			} else {
				m.state = stateSendClientFinished
			}
			// (mirrors nextStateAfterServerFinished's priority order
			// minus the already-handled early-data branch)

		case stateSendCCSAfterServerFinished:
			if err := m.layer.WriteChangeCipherSpec(); err != nil {
				if m.wantIO(err) {
					return ResultWantIO, nil
				}
				return m.fail(alert.Wrap(alert.KindInternalError, err, "writing middlebox-compat ChangeCipherSpec after server Finished"))
			}
			// nextStateAfterServerFinished only routes here when
			// clientAuth is false (client auth takes priority and goes
			// straight to stateSendClientCertificateFlight), so the next
			// state is always the client's Finished.
			m.ccsBeforeSecondCH = true
			m.state = stateSendClientFinished

		case stateSendClientCertificateFlight:
			if err := m.sendClientCertificateFlight(); err != nil {
				return m.fail(err)
			}
			m.state = stateSendClientFinished

		case stateSendClientFinished:
			if err := m.sendClientFinished(); err != nil {
				return m.fail(err)
			}
			m.state = stateHandshakeDone
			return ResultHandshakeComplete, nil

		case stateHandshakeDone:
			m.state = statePostHandshake
			return ResultOK, nil

		case statePostHandshake:
			res, err := m.recvPostHandshakeMessage()
			if m.wantIO(err) {
				return ResultWantIO, nil
			}
			if err != nil {
				return m.fail(err)
			}
			return res, nil

		case stateDowngradeHandoff:
			return ResultDowngradeHandoff, nil

		default:
			return m.fail(alert.New(alert.KindInternalError, "handshake: unreachable state %d", m.state))
		}
	}
}

// nextStateAfterServerFinished implements the branch out of
// SERVER_FINISHED in the state diagram (spec.md §4.7): EndOfEarlyData
// first if early data was accepted, then client auth if requested,
// then the middlebox-compat dummy CCS if this connection never sent
// one yet, then the client's Finished.
func (m *Machine) nextStateAfterServerFinished() state {
	if m.session.EarlyData == EarlyDataAccepted {
		return stateSendEndOfEarlyData
	}
	if m.clientAuth {
		return stateSendClientCertificateFlight
	}
	if m.cfg.MiddleboxCompat && !m.ccsBeforeSecondCH {
		return stateSendCCSAfterServerFinished
	}
	return stateSendClientFinished
}

func (m *Machine) wantIO(err error) bool {
	return errors.Is(err, record.ErrWantIO)
}

// fail queues the pending fatal alert on the record layer and freezes
// the machine; per spec.md §4.7 "states never retry; the connection
// is dead on any fatal condition."
func (m *Machine) fail(err error) (Result, error) {
	m.destroyEphemeral()
	var ae *alert.Error
	if errors.As(err, &ae) {
		m.layer.PendFatalAlert(ae.Description(), ae)
	} else {
		m.layer.PendFatalAlert(alert.DescInternalError, err)
	}
	m.state = stateFailed
	return ResultOK, err
}

func (m *Machine) destroyEphemeral() {
	if m.ephemeral != nil {
		m.ephemeral.Destroy()
		m.ephemeral = nil
	}
}

func randomBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, alert.Wrap(alert.KindInternalError, err, "reading randomness")
	}
	return b, nil
}
