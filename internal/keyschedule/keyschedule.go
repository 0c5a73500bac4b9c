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

// Package keyschedule implements the RFC 8446 §7.1 key schedule:
// HKDF-Extract, HKDF-Expand-Label, and the Derive-Secret chain from
// early secret through to the resumption master secret. spec.md §1
// treats HKDF-Extract/Expand-Label as an external crypto collaborator;
// this package is the concrete binding to golang.org/x/crypto/hkdf
// that the handshake engine (internal/handshake) is wired against by
// default, with the TLS-specific "Label" framing implemented directly
// since no library in the corpus expresses that framing for us.
package keyschedule

import (
	"crypto/hmac"
	"fmt"
	"hash"

	"golang.org/x/crypto/hkdf"
)

// Suite bundles the hash function a cipher suite uses for its key
// schedule (SHA-256 for the AES-128-GCM/ChaCha20 suites, SHA-384 for
// AES-256-GCM, per RFC 8446 §B.4).
type Suite struct {
	Name   string
	Hash   func() hash.Hash
	Length int
}

// Extract performs HKDF-Extract(salt, ikm). A nil salt or ikm is
// treated as a string of Length zero bytes, per RFC 5869 and RFC 8446
// §7.1's "zero" convention for early/handshake secrets without a PSK
// or ECDHE input respectively.
func (s Suite) Extract(salt, ikm []byte) []byte {
	if salt == nil {
		salt = make([]byte, s.Length)
	}
	if ikm == nil {
		ikm = make([]byte, s.Length)
	}
	return hkdf.Extract(s.Hash, ikm, salt)
}

// ExpandLabel implements HKDF-Expand-Label(Secret, Label, Context, Length)
// from RFC 8446 §7.1:
//
//	HkdfLabel = struct {
//	    uint16 length = Length;
//	    opaque label<7..255> = "tls13 " + Label;
//	    opaque context<0..255> = Context;
//	}
func (s Suite) ExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	full := "tls13 " + label
	hkdfLabel := make([]byte, 0, 2+1+len(full)+1+len(context))
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	hkdfLabel = append(hkdfLabel, byte(len(full)))
	hkdfLabel = append(hkdfLabel, full...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)

	out := make([]byte, length)
	r := hkdf.Expand(s.Hash, secret, hkdfLabel)
	if _, err := r.Read(out); err != nil {
		// hkdf.Expand only errors when the requested length exceeds
		// 255*HashLen, which never happens for any TLS 1.3 derived
		// secret (all are at most Length bytes long); a failure here
		// indicates a programming error, not a runtime condition.
		panic(fmt.Sprintf("keyschedule: expand-label %q: %v", label, err))
	}
	return out
}

// DeriveSecret implements Derive-Secret(Secret, Label, Messages) =
// HKDF-Expand-Label(Secret, Label, Transcript-Hash(Messages), Hash.length).
func (s Suite) DeriveSecret(secret []byte, label string, transcriptHash []byte) []byte {
	return s.ExpandLabel(secret, label, transcriptHash, s.Length)
}

// Schedule holds the running key-schedule state for one connection,
// advanced exactly at the transition points named in spec.md §4.7.
type Schedule struct {
	Suite Suite

	earlySecret      []byte
	handshakeSecret  []byte
	masterSecret     []byte
	resumptionMaster []byte
}

// EarlySecret computes Early Secret = HKDF-Extract(0, PSK) (PSK is nil
// when no PSK is in use, per RFC 8446 §7.1's key-schedule diagram).
func (s *Schedule) EarlySecret(psk []byte) []byte {
	s.earlySecret = s.Suite.Extract(nil, psk)
	return s.earlySecret
}

// ExternalBinderKey derives the external-PSK binder key.
func (s *Schedule) ExternalBinderKey() []byte {
	empty := s.emptyTranscriptHash()
	return s.Suite.DeriveSecret(s.earlySecret, "ext binder", empty)
}

// ResumptionBinderKey derives the resumption-PSK binder key.
func (s *Schedule) ResumptionBinderKey() []byte {
	empty := s.emptyTranscriptHash()
	return s.Suite.DeriveSecret(s.earlySecret, "res binder", empty)
}

func (s *Schedule) emptyTranscriptHash() []byte {
	h := s.Suite.Hash()
	return h.Sum(nil)
}

// ClientEarlyTrafficSecret derives c e traffic over the transcript
// hash through ClientHello (RFC 8446 §7.1), used to protect
// EndOfEarlyData when the client offers 0-RTT (spec.md's early-data
// supplement).
func (s *Schedule) ClientEarlyTrafficSecret(transcriptThroughClientHello []byte) []byte {
	return s.Suite.DeriveSecret(s.earlySecret, "c e traffic", transcriptThroughClientHello)
}

// HandshakeSecret computes Handshake Secret = HKDF-Extract(Derive-Secret(Early Secret, "derived", ""), ECDHE).
// ecdheSharedSecret is nil when the key-exchange mode is pure PSK.
func (s *Schedule) HandshakeSecret(ecdheSharedSecret []byte) []byte {
	derived := s.Suite.DeriveSecret(s.earlySecret, "derived", s.emptyTranscriptHash())
	s.handshakeSecret = s.Suite.Extract(derived, ecdheSharedSecret)
	return s.handshakeSecret
}

// ClientHandshakeTrafficSecret derives c hs traffic over the
// transcript hash through ServerHello.
func (s *Schedule) ClientHandshakeTrafficSecret(transcriptHash []byte) []byte {
	return s.Suite.DeriveSecret(s.handshakeSecret, "c hs traffic", transcriptHash)
}

// ServerHandshakeTrafficSecret derives s hs traffic over the
// transcript hash through ServerHello.
func (s *Schedule) ServerHandshakeTrafficSecret(transcriptHash []byte) []byte {
	return s.Suite.DeriveSecret(s.handshakeSecret, "s hs traffic", transcriptHash)
}

// MasterSecret computes Master Secret = HKDF-Extract(Derive-Secret(Handshake Secret, "derived", ""), 0).
func (s *Schedule) MasterSecret() []byte {
	derived := s.Suite.DeriveSecret(s.handshakeSecret, "derived", s.emptyTranscriptHash())
	s.masterSecret = s.Suite.Extract(derived, nil)
	return s.masterSecret
}

// ClientApplicationTrafficSecret derives c ap traffic over the
// transcript hash through server Finished.
func (s *Schedule) ClientApplicationTrafficSecret(transcriptHash []byte) []byte {
	return s.Suite.DeriveSecret(s.masterSecret, "c ap traffic", transcriptHash)
}

// ServerApplicationTrafficSecret derives s ap traffic over the
// transcript hash through server Finished.
func (s *Schedule) ServerApplicationTrafficSecret(transcriptHash []byte) []byte {
	return s.Suite.DeriveSecret(s.masterSecret, "s ap traffic", transcriptHash)
}

// ResumptionMasterSecret derives the resumption master secret over the
// transcript hash through client Finished, stored for later ticket
// processing (spec.md §3, §4.8).
func (s *Schedule) ResumptionMasterSecret(transcriptHash []byte) []byte {
	s.resumptionMaster = s.Suite.DeriveSecret(s.masterSecret, "res master", transcriptHash)
	return s.resumptionMaster
}

// ResumptionKey derives the resumption PSK for a NewSessionTicket's
// ticket_nonce, per spec.md §4.8:
// HKDF-Expand-Label(resumption_master_secret, "resumption", ticket_nonce, Hash.length).
func (s Suite) ResumptionKey(resumptionMasterSecret, ticketNonce []byte) []byte {
	return s.ExpandLabel(resumptionMasterSecret, "resumption", ticketNonce, s.Length)
}

// FinishedKey derives finished_key = HKDF-Expand-Label(BaseKey, "finished", "", Hash.length).
func (s Suite) FinishedKey(baseKey []byte) []byte {
	return s.ExpandLabel(baseKey, "finished", nil, s.Length)
}

// VerifyData computes the Finished message's verify_data = HMAC(finished_key, Transcript-Hash).
func (s Suite) VerifyData(finishedKey, transcriptHash []byte) []byte {
	mac := hmac.New(s.Hash, finishedKey)
	mac.Write(transcriptHash)
	return mac.Sum(nil)
}

// Binder computes a PSK binder: HMAC(binderKey-derived finished_key, partial-transcript-hash).
// Per spec.md §4.5, the binder key itself is Derive-Secret'd from the
// early secret using "ext binder"/"res binder" (see ExternalBinderKey/
// ResumptionBinderKey); this computes the binder value from that key.
func (s Suite) Binder(binderKey, partialTranscriptHash []byte) []byte {
	finishedKey := s.FinishedKey(binderKey)
	return s.VerifyData(finishedKey, partialTranscriptHash)
}
