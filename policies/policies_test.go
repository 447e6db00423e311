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

package policies

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terry-li-hm/frenum/internal/engine"
)

func TestStarterPolicy_ParsesAndLintsClean(t *testing.T) {
	cfg, err := engine.ParseConfig(Starter())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cfg.PolicyVersion)
	assert.Len(t, cfg.Rules, 3)

	findings := engine.Lint(cfg.Rules)
	errors, warnings := engine.CountFindings(findings)
	assert.Zero(t, errors, "starter policy must lint clean: %v", findings)
	assert.Zero(t, warnings, "starter policy must lint clean: %v", findings)
}

func TestStarterTests_AllPassAgainstStarterPolicy(t *testing.T) {
	cfg, err := engine.ParseConfig(Starter())
	require.NoError(t, err)
	eng := engine.New(cfg)

	path := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(path, StarterTests(), 0o644))
	cases, err := engine.LoadTests(path)
	require.NoError(t, err)
	require.Len(t, cases, 4)

	results, err := eng.RunTests(cases)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Passed, "%s: %s", r.Case.Description, r.Reason)
	}

	coverage := eng.CalculateCoverage(results)
	assert.Equal(t, 100.0, coverage.CoveragePct, "starter tests should exercise every rule")
}
