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

package kex

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestX25519RoundTrip(t *testing.T) {
	g := x25519Group{}

	clientPub, clientEph, err := g.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("client generate: %v", err)
	}
	serverPub, serverEph, err := g.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("server generate: %v", err)
	}

	clientSS, err := clientEph.SharedSecret(serverPub)
	if err != nil {
		t.Fatalf("client shared secret: %v", err)
	}
	serverSS, err := serverEph.SharedSecret(clientPub)
	if err != nil {
		t.Fatalf("server shared secret: %v", err)
	}
	if !bytes.Equal(clientSS, serverSS) {
		t.Fatalf("shared secrets differ: %x vs %x", clientSS, serverSS)
	}

	clientEph.Destroy()
	if _, err := clientEph.SharedSecret(serverPub); err == nil {
		t.Fatal("expected error computing shared secret after Destroy")
	}
}

func TestECDHRoundTrip(t *testing.T) {
	for _, g := range []Group{
		ecdhGroup{id: GroupSECP256R1, curve: Default[1].(ecdhGroup).curve},
		ecdhGroup{id: GroupSECP384R1, curve: Default[2].(ecdhGroup).curve},
	} {
		clientPub, clientEph, err := g.Generate(rand.Reader)
		if err != nil {
			t.Fatalf("%s: client generate: %v", g.ID(), err)
		}
		serverPub, serverEph, err := g.Generate(rand.Reader)
		if err != nil {
			t.Fatalf("%s: server generate: %v", g.ID(), err)
		}
		clientSS, err := clientEph.SharedSecret(serverPub)
		if err != nil {
			t.Fatalf("%s: client shared secret: %v", g.ID(), err)
		}
		serverSS, err := serverEph.SharedSecret(clientPub)
		if err != nil {
			t.Fatalf("%s: server shared secret: %v", g.ID(), err)
		}
		if !bytes.Equal(clientSS, serverSS) {
			t.Fatalf("%s: shared secrets differ", g.ID())
		}
	}
}

func TestHybridKEMRoundTrip(t *testing.T) {
	g := hybridGroup{id: GroupX25519Kyber768Draft0, scheme: Default[4].(hybridGroup).scheme}

	pub, eph, err := g.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pk, err := g.scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		t.Fatalf("unmarshal public key: %v", err)
	}
	ct, serverSS, err := g.scheme.Encapsulate(pk)
	if err != nil {
		t.Fatalf("encapsulate: %v", err)
	}
	clientSS, err := eph.SharedSecret(ct)
	if err != nil {
		t.Fatalf("decapsulate: %v", err)
	}
	if !bytes.Equal(clientSS, serverSS) {
		t.Fatalf("shared secrets differ")
	}
}

func TestByID(t *testing.T) {
	g, ok := ByID(Default, GroupX25519)
	if !ok || g.ID() != GroupX25519 {
		t.Fatalf("ByID(X25519) = %v, %v", g, ok)
	}
	if _, ok := ByID(Default, NamedGroup(0xffff)); ok {
		t.Fatalf("ByID(unknown) should report !ok")
	}
}
