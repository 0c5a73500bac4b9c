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

// Package psk implements the PSK/ticket selector (C4): it enumerates
// the PSKs a ClientHello may offer, supplies identities and obfuscated
// ages for the pre_shared_key extension, and recovers the selected PSK
// once the server's ServerHello names a selected_identity. Binder
// construction itself (HMAC over a partial transcript) lives in
// internal/keyschedule; this package sequences the steps spec.md §4.5
// describes around it.
package psk

import (
	"github.com/trustngotech/tls13client/internal/extension"
	"github.com/trustngotech/tls13client/internal/keyschedule"
)

// Kind distinguishes an external (out-of-band) PSK from one derived
// from a resumption ticket.
type Kind int

const (
	KindResumption Kind = iota
	KindExternal
)

// Ticket is a previously-stored resumption session, the shape named in
// spec.md §3 "Negotiated session".
type Ticket struct {
	Blob             []byte
	CipherSuiteID    uint16
	Suite            keyschedule.Suite
	Key              []byte // the derived resumption PSK
	LifetimeSeconds  uint32
	AgeAdd           uint32
	ReceivedUnixSecs int64 // 0 if no clock was available when stored
	AllowEarlyData   bool
	// AllowsMode reports whether this ticket's flags permit the given
	// locally-enabled PSK mode; the caller (internal/handshake) wires
	// this to the ticket's stored PSK-mode bitfield.
	AllowsMode func(pskDHEKEEnabled, pskKEEnabled bool) bool
}

// ExternalPSK is a statically configured out-of-band PSK.
type ExternalPSK struct {
	Identity []byte
	Secret   []byte
	Suite    keyschedule.Suite // hashed with SHA-256 "by convention" per spec.md §4.3
}

// Offered is one PSK enumerated for a ClientHello, carrying everything
// needed to both write the identities and, later, compute its binder.
type Offered struct {
	Kind          Kind
	Identity      []byte
	ObfuscatedAge uint32
	Suite         keyschedule.Suite
	// Secret is the PSK value itself (resumption key or external
	// secret) binders are derived from.
	Secret []byte
}

// Selector enumerates offerable PSKs in the fixed order spec.md §4.3 /
// §9 Open Questions requires preserved: a configured resumption ticket
// first, then a configured external PSK.
type Selector struct {
	Ticket   *Ticket
	External *ExternalPSK

	ResumptionEnabled bool
	PSKDHEKEEnabled   bool
	PSKKEEnabled      bool

	// NowUnixSecs returns the current wall-clock time, or returns ok
	// == false if no clock is available (spec.md §6: "Clock ...
	// optional; absence implies obfuscated age 0").
	NowUnixSecs func() (secs int64, ok bool)
}

// Offerable returns, in order, every PSK this ClientHello may offer.
func (s *Selector) Offerable() []Offered {
	var out []Offered

	if s.ResumptionEnabled && s.Ticket != nil && len(s.Ticket.Blob) > 0 &&
		s.Ticket.AllowsMode != nil && s.Ticket.AllowsMode(s.PSKDHEKEEnabled, s.PSKKEEnabled) {
		out = append(out, Offered{
			Kind:          KindResumption,
			Identity:      s.Ticket.Blob,
			ObfuscatedAge: s.obfuscatedTicketAge(s.Ticket),
			Suite:         s.Ticket.Suite,
			Secret:        s.Ticket.Key,
		})
	}

	if s.External != nil && len(s.External.Secret) > 0 {
		out = append(out, Offered{
			Kind:          KindExternal,
			Identity:      s.External.Identity,
			ObfuscatedAge: 0,
			Suite:         s.External.Suite,
			Secret:        s.External.Secret,
		})
	}

	return out
}

// obfuscatedTicketAge computes spec.md §4.3's ticket age formula:
// ((now - ticket_received)_seconds - 1, floored at 0) * 1000 +
// ticket_age_add, truncated to 32 bits. If no clock is available, or
// the ticket carries no ReceivedUnixSecs, the obfuscated age is 0
// (spec.md §8.10 gives the worked example for the non-zero case).
func (s *Selector) obfuscatedTicketAge(tk *Ticket) uint32 {
	if s.NowUnixSecs == nil || tk.ReceivedUnixSecs == 0 {
		return 0
	}
	now, ok := s.NowUnixSecs()
	if !ok {
		return 0
	}
	ageSeconds := now - tk.ReceivedUnixSecs - 1
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	return uint32(uint64(ageSeconds)*1000+uint64(tk.AgeAdd)) & 0xffffffff
}

// ToExtensionIdentities converts Offerable() output into the form
// internal/extension.EncodePreSharedKeyIdentities expects.
func ToExtensionIdentities(offered []Offered) []extension.OfferedIdentity {
	out := make([]extension.OfferedIdentity, len(offered))
	for i, o := range offered {
		out[i] = extension.OfferedIdentity{
			Identity:      o.Identity,
			ObfuscatedAge: o.ObfuscatedAge,
			BinderLen:     o.Suite.Length,
		}
	}
	return out
}

// ComputeBinders derives and returns one binder per offered PSK, given
// the binder key the caller has already derived for each PSK's key
// schedule (binderKeys[i] belongs to offered[i]) and the partial-ClientHello transcript hash
// snapshot taken right after the binders were zeroed (spec.md §4.5
// steps 1-3). Callers must have already called EarlySecret +
// ExternalBinderKey/ResumptionBinderKey per PSK on a *keyschedule.Schedule
// scoped to that PSK before calling this.
func ComputeBinders(offered []Offered, binderKeys [][]byte, partialTranscriptHash []byte) [][]byte {
	binders := make([][]byte, len(offered))
	for i, o := range offered {
		binders[i] = o.Suite.Binder(binderKeys[i], partialTranscriptHash)
	}
	return binders
}

// Selected recovers the PSK chosen by the server's
// pre_shared_key.selected_identity.
func Selected(offered []Offered, selectedIdentity int) (Offered, bool) {
	if selectedIdentity < 0 || selectedIdentity >= len(offered) {
		return Offered{}, false
	}
	return offered[selectedIdentity], true
}
