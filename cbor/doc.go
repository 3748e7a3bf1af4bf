// Copyright 2026 Blink Labs Software
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

// Package cbor provides the CBOR encoding used for structured payloads sent to
// worker processes, such as the bootstrap config frame.
//
// Encoding is deterministic: map keys are sorted using the core deterministic
// rules, so the same value always produces the same bytes. Decoding rejects
// unknown struct fields and duplicate map keys.
//
//	data, err := cbor.Encode(&cfg)
//	...
//	var cfg worker.Config
//	if _, err := cbor.Decode(data, &cfg); err != nil {
//	    return err
//	}
package cbor
