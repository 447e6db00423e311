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

package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// styler renders terminal styling that can be switched off, honoring
// the NO_COLOR convention (https://no-color.org) and --no-color.
type styler struct {
	enabled bool
}

func newStyler(noColorFlag bool) styler {
	if noColorFlag || os.Getenv("NO_COLOR") != "" {
		return styler{}
	}
	return styler{enabled: true}
}

func (s styler) pass(text string) string {
	if !s.enabled {
		return text
	}
	return passStyle.Render(text)
}

func (s styler) fail(text string) string {
	if !s.enabled {
		return text
	}
	return failStyle.Render(text)
}

func (s styler) warn(text string) string {
	if !s.enabled {
		return text
	}
	return warnStyle.Render(text)
}

func (s styler) faint(text string) string {
	if !s.enabled {
		return text
	}
	return faintStyle.Render(text)
}
