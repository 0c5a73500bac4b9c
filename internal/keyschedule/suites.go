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

package keyschedule

import (
	"crypto/sha256"
	"crypto/sha512"
)

// SHA256 is the key-schedule hash used by the SHA-256-keyed TLS 1.3
// cipher suites (AES-128-GCM-SHA256, CHACHA20-POLY1305-SHA256).
var SHA256 = Suite{Name: "sha256", Hash: sha256.New, Length: sha256.Size}

// SHA384 is the key-schedule hash used by AES-256-GCM-SHA384.
var SHA384 = Suite{Name: "sha384", Hash: sha512.New384, Length: sha512.Size384}
