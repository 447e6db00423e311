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

// Package policies embeds the starter policy and test fixtures
// scaffolded by `frenum init`.
package policies

import "embed"

//go:embed starter.yaml starter_tests.yaml
var fs embed.FS

// Starter returns the starter policy YAML.
func Starter() []byte {
	data, err := fs.ReadFile("starter.yaml")
	if err != nil {
		panic("policies: starter.yaml not embedded: " + err.Error())
	}
	return data
}

// StarterTests returns the starter test fixture YAML.
func StarterTests() []byte {
	data, err := fs.ReadFile("starter_tests.yaml")
	if err != nil {
		panic("policies: starter_tests.yaml not embedded: " + err.Error())
	}
	return data
}
