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

package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadEventsFromOffset reads decision events from path starting at
// the given byte offset. Returns the parsed events, the new offset,
// and any error. Chain continuation headers and partial trailing
// lines are skipped; the offset never advances past an unterminated
// line so it can be re-read once complete. A truncated file (offset
// beyond size) resets to the beginning.
func ReadEventsFromOffset(path string, offset int64) ([]Event, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("audit: stat %s: %w", path, err)
	}
	if offset > info.Size() {
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("audit: seek %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	cursor := offset
	events := make([]Event, 0, 8)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, cursor, fmt.Errorf("audit: read line: %w", err)
		}

		if line == "" && errors.Is(err, io.EOF) {
			return events, cursor, nil
		}
		if !strings.HasSuffix(line, "\n") {
			return events, cursor, nil
		}

		cursor += int64(len(line))
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			var evt Event
			// Continuation headers lack an id; skip them.
			if json.Unmarshal([]byte(trimmed), &evt) == nil && evt.ID != "" {
				events = append(events, evt)
			}
		}

		if errors.Is(err, io.EOF) {
			return events, cursor, nil
		}
	}
}
