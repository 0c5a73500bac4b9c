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

// Package kex implements the ECDHE/KEM key-exchange collaborator
// named in spec.md §6 ("ECDHE key-gen and shared-secret computation
// per named group"). The handshake engine only ever talks to the
// Group interface; concrete groups are registered here and wired to
// golang.org/x/crypto (X25519), the standard library's crypto/ecdh
// (the NIST curves) and github.com/cloudflare/circl (post-quantum
// hybrid); x/crypto and circl are libraries caddyserver-caddy's go.mod
// already depends on for its own TLS group support.
package kex

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/hybrid"
	"golang.org/x/crypto/curve25519"
)

// NamedGroup is the IANA "Supported Groups" registry value used on
// the wire in supported_groups and key_share (RFC 8446 §4.2.7).
type NamedGroup uint16

const (
	GroupSECP256R1            NamedGroup = 0x0017
	GroupSECP384R1            NamedGroup = 0x0018
	GroupSECP521R1            NamedGroup = 0x0019
	GroupX25519               NamedGroup = 0x001d
	GroupX25519Kyber768Draft0 NamedGroup = 0x6399
)

func (g NamedGroup) String() string {
	switch g {
	case GroupSECP256R1:
		return "secp256r1"
	case GroupSECP384R1:
		return "secp384r1"
	case GroupSECP521R1:
		return "secp521r1"
	case GroupX25519:
		return "x25519"
	case GroupX25519Kyber768Draft0:
		return "x25519_kyber768_draft00"
	default:
		return fmt.Sprintf("group(0x%04x)", uint16(g))
	}
}

// Ephemeral is the private half of a generated key-share: the
// handshake state holds exactly one of these at a time (spec.md §3
// invariant 1-2) and destroys it before generating a replacement
// (invariant 3, on HelloRetryRequest).
type Ephemeral interface {
	// SharedSecret completes the exchange against the peer's
	// key_exchange bytes.
	SharedSecret(peerPublic []byte) ([]byte, error)
	// Destroy discards the private key so later SharedSecret calls
	// fail; the X25519 implementation also zeroes its scalar. Safe to
	// call more than once.
	Destroy()
}

// Group generates ephemeral key-share material for one named group.
type Group interface {
	ID() NamedGroup
	// Generate produces the client's key_exchange bytes to place in
	// the key_share extension, and the Ephemeral used later to derive
	// the shared secret from the server's reply.
	Generate(rnd io.Reader) (pub []byte, eph Ephemeral, err error)
}

// Default is the set of groups this engine can offer, in the order a
// client should prefer them (X25519 first, matching
// caddyserver-caddy/caddytls/config.go's defaultCurves ordering of
// X25519 before the NIST curves).
var Default = []Group{
	x25519Group{},
	ecdhGroup{id: GroupSECP256R1, curve: ecdh.P256()},
	ecdhGroup{id: GroupSECP384R1, curve: ecdh.P384()},
	ecdhGroup{id: GroupSECP521R1, curve: ecdh.P521()},
	hybridGroup{id: GroupX25519Kyber768Draft0, scheme: hybrid.Kyber768X25519()},
}

// ByID returns the registered Group for id, if any.
func ByID(groups []Group, id NamedGroup) (Group, bool) {
	for _, g := range groups {
		if g.ID() == id {
			return g, true
		}
	}
	return nil, false
}

// --- X25519 ---

type x25519Group struct{}

func (x25519Group) ID() NamedGroup { return GroupX25519 }

func (x25519Group) Generate(rnd io.Reader) ([]byte, Ephemeral, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rnd, priv[:]); err != nil {
		return nil, nil, fmt.Errorf("kex: x25519 seed: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("kex: x25519 scalar-mult: %w", err)
	}
	return pub, &x25519Ephemeral{priv: priv}, nil
}

type x25519Ephemeral struct {
	priv [32]byte
	done bool
}

func (e *x25519Ephemeral) SharedSecret(peerPublic []byte) ([]byte, error) {
	if e.done {
		return nil, fmt.Errorf("kex: x25519 ephemeral already destroyed")
	}
	if len(peerPublic) != 32 {
		return nil, fmt.Errorf("kex: x25519 peer public key has length %d, want 32", len(peerPublic))
	}
	ss, err := curve25519.X25519(e.priv[:], peerPublic)
	if err != nil {
		return nil, fmt.Errorf("kex: x25519 shared secret: %w", err)
	}
	return ss, nil
}

func (e *x25519Ephemeral) Destroy() {
	for i := range e.priv {
		e.priv[i] = 0
	}
	e.done = true
}

// --- NIST curves via stdlib crypto/ecdh ---
//
// No example repo in the corpus ships an alternative ECDH
// implementation for the NIST curves (circl focuses on post-quantum
// and the hybrid KEMs); crypto/ecdh is the modern stdlib primitive
// purpose-built for exactly this, so it is used directly rather than
// hand-rolling scalar multiplication over crypto/elliptic. See
// DESIGN.md for this stdlib justification.

type ecdhGroup struct {
	id    NamedGroup
	curve ecdh.Curve
}

func (g ecdhGroup) ID() NamedGroup { return g.id }

func (g ecdhGroup) Generate(rnd io.Reader) ([]byte, Ephemeral, error) {
	priv, err := g.curve.GenerateKey(rnd)
	if err != nil {
		return nil, nil, fmt.Errorf("kex: %s keygen: %w", g.id, err)
	}
	return priv.PublicKey().Bytes(), &ecdhEphemeral{curve: g.curve, priv: priv}, nil
}

type ecdhEphemeral struct {
	curve ecdh.Curve
	priv  *ecdh.PrivateKey
}

func (e *ecdhEphemeral) SharedSecret(peerPublic []byte) ([]byte, error) {
	if e.priv == nil {
		return nil, fmt.Errorf("kex: ecdh ephemeral already destroyed")
	}
	peer, err := e.curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("kex: invalid peer public key: %w", err)
	}
	ss, err := e.priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("kex: ecdh: %w", err)
	}
	return ss, nil
}

func (e *ecdhEphemeral) Destroy() { e.priv = nil }

// --- Post-quantum hybrid KEM (X25519Kyber768Draft00) ---
//
// In this hybrid, the "key_exchange" the client offers is its KEM
// encapsulation public key, and what it gets back from the server is
// a KEM ciphertext, mirroring draft-ietf-tls-hybrid-design: the
// client is the encapsulation-key holder, not the encapsulator,
// because TLS 1.3's ClientHello/ServerHello key_share roles put the
// client first.

type hybridGroup struct {
	id     NamedGroup
	scheme kem.Scheme
}

func (g hybridGroup) ID() NamedGroup { return g.id }

func (g hybridGroup) Generate(rnd io.Reader) ([]byte, Ephemeral, error) {
	pk, sk, err := g.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("kex: %s keygen: %w", g.id, err)
	}
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("kex: %s marshal public key: %w", g.id, err)
	}
	return pub, &hybridEphemeral{scheme: g.scheme, sk: sk}, nil
}

type hybridEphemeral struct {
	scheme kem.Scheme
	sk     kem.PrivateKey
}

func (e *hybridEphemeral) SharedSecret(ciphertext []byte) ([]byte, error) {
	if e.sk == nil {
		return nil, fmt.Errorf("kex: hybrid ephemeral already destroyed")
	}
	ss, err := e.scheme.Decapsulate(e.sk, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("kex: decapsulate: %w", err)
	}
	return ss, nil
}

func (e *hybridEphemeral) Destroy() { e.sk = nil }

// Rand is the randomness source the handshake passes to Generate; it
// is a variable so another reader can be substituted.
var Rand io.Reader = rand.Reader
