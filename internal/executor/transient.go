// Copyright 2025 Tom Barlow
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

package executor

import "strings"

// transientFragments are substrings of error messages that indicate
// external or environmental flakiness (rate limiting, connection
// resets, 5xx responses, timeouts, auth/balance problems) rather than a
// workflow regression. Matches are downgraded from error to warning so
// the retry pass can pick them up.
var transientFragments = []string{
	// rate limiting
	"429",
	"rate limit",
	"too many requests",
	// connection failures
	"econnreset",
	"econnrefused",
	"etimedout",
	"esockettimedout",
	"socket hang up",
	"getaddrinfo",
	// 5xx-class responses
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	// timeouts
	"timed out",
	"timeout",
	// auth / balance
	"unauthorized",
	"authorization failed",
	"insufficient balance",
	"insufficient quota",
}

// IsTransient reports whether an error message matches the curated set
// of transient-failure fragments. Matching is case-insensitive.
func IsTransient(message string) bool {
	lower := strings.ToLower(message)
	for _, fragment := range transientFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
