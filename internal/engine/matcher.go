// Copyright 2026 The Frenum Authors
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

package engine

import "path"

// MatchTool reports whether a tool name matches the glob pattern.
//
// Matching is against the full tool name, never a substring — a
// substring match would silently widen a rule's scope. "*" matches
// any tool. An empty or invalid pattern matches nothing.
//
//	"execute_sql" matches only "execute_sql"
//	"fs_*"        matches "fs_read", "fs_write"
//	"*"           matches everything
func MatchTool(pattern, name string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	matched, err := path.Match(pattern, name)
	if err != nil {
		return false // invalid pattern = no match, not a panic
	}
	return matched
}

// appliesTo reports whether a rule's applies_to scope covers the
// tool name: true when any configured pattern matches.
func appliesTo(rule RuleConfig, name string) bool {
	for _, pattern := range rule.AppliesTo {
		if MatchTool(pattern, name) {
			return true
		}
	}
	return false
}
