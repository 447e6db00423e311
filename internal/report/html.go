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

package report

import (
	"fmt"
	"html/template"
	"io"
)

// WriteHTML renders the report as a single self-contained HTML page.
// No external assets, so the file can be archived alongside the
// policy it attests to.
func WriteHTML(w io.Writer, data Data) error {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("report: execute html template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Policy Test Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif;
            background-color: #0d1117;
            color: #c9d1d9;
            line-height: 1.5;
            min-height: 100vh;
        }

        .container {
            max-width: 1100px;
            margin: 0 auto;
            padding: 20px;
        }

        .header {
            text-align: center;
            margin-bottom: 30px;
            padding: 20px;
            background-color: #161b22;
            border-radius: 8px;
        }

        .header h1 {
            font-size: 1.8em;
            margin-bottom: 10px;
        }

        .header .meta {
            color: #7d8590;
            font-size: 0.85em;
            font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
        }

        .summary {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 20px;
            margin-bottom: 30px;
        }

        .card {
            background-color: #161b22;
            border-radius: 8px;
            padding: 20px;
            text-align: center;
            border-left: 4px solid #21262d;
        }

        .card.total { border-left-color: #58a6ff; }
        .card.passed { border-left-color: #3fb950; }
        .card.failed { border-left-color: #f85149; }
        .card.coverage { border-left-color: #d29922; }

        .card-number {
            font-size: 2em;
            font-weight: bold;
            margin-bottom: 5px;
        }

        .card-label {
            color: #7d8590;
            font-size: 0.9em;
        }

        .section {
            background-color: #161b22;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
        }

        .section h2 {
            margin-bottom: 20px;
            font-size: 1.2em;
        }

        table {
            width: 100%;
            border-collapse: collapse;
            font-size: 0.9em;
        }

        th {
            text-align: left;
            padding: 8px 12px;
            color: #7d8590;
            border-bottom: 1px solid #21262d;
        }

        td {
            padding: 8px 12px;
            border-bottom: 1px solid #21262d;
            vertical-align: top;
        }

        .status {
            display: inline-block;
            padding: 2px 8px;
            border-radius: 4px;
            font-size: 0.8em;
            font-weight: bold;
        }

        .status-pass {
            background-color: #238636;
            color: white;
        }

        .status-fail {
            background-color: #da3633;
            color: white;
        }

        .rule-list {
            font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
            font-size: 0.85em;
            color: #7d8590;
        }

        .footer {
            text-align: center;
            color: #7d8590;
            font-size: 0.8em;
            font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
            padding: 10px;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Policy Test Report</h1>
            <div class="meta">policy {{.PolicyVersion}} &middot; {{.PolicyHash}}</div>
            <div class="meta">generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</div>
        </div>

        <div class="summary">
            <div class="card total">
                <div class="card-number">{{.Total}}</div>
                <div class="card-label">Test Cases</div>
            </div>
            <div class="card passed">
                <div class="card-number">{{.Passed}}</div>
                <div class="card-label">Passed</div>
            </div>
            <div class="card failed">
                <div class="card-number">{{.Failed}}</div>
                <div class="card-label">Failed</div>
            </div>
            <div class="card coverage">
                <div class="card-number">{{printf "%.1f" .Coverage.CoveragePct}}%</div>
                <div class="card-label">Rule Coverage</div>
            </div>
        </div>

        <div class="section">
            <h2>Test Cases</h2>
            <table>
                <thead>
                    <tr>
                        <th>Status</th>
                        <th>Description</th>
                        <th>Tool</th>
                        <th>Expected</th>
                        <th>Actual</th>
                        <th>Reason</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Results}}
                    <tr>
                        <td>
                            {{if .Passed}}<span class="status status-pass">PASS</span>{{else}}<span class="status status-fail">FAIL</span>{{end}}
                        </td>
                        <td>{{.Description}}</td>
                        <td class="rule-list">{{.Tool}}</td>
                        <td>{{.Expected}}{{if .ExpectedRule}} ({{.ExpectedRule}}){{end}}</td>
                        <td>{{.Actual}}{{if .ActualRule}} ({{.ActualRule}}){{end}}</td>
                        <td>{{.Reason}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>

        <div class="section">
            <h2>Rule Coverage</h2>
            <table>
                <tbody>
                    <tr>
                        <td>Deterministic rules</td>
                        <td class="rule-list">{{.Coverage.TotalDeterministicRules}}</td>
                    </tr>
                    <tr>
                        <td>Exercised</td>
                        <td class="rule-list">{{range $i, $r := .Coverage.RulesExercised}}{{if $i}}, {{end}}{{$r}}{{end}}</td>
                    </tr>
                    <tr>
                        <td>Not exercised</td>
                        <td class="rule-list">{{range $i, $r := .Coverage.RulesNotExercised}}{{if $i}}, {{end}}{{$r}}{{end}}</td>
                    </tr>
                    <tr>
                        <td>Semantic (not auto-testable)</td>
                        <td class="rule-list">{{range $i, $r := .Coverage.SemanticRules}}{{if $i}}, {{end}}{{$r}}{{end}}</td>
                    </tr>
                </tbody>
            </table>
        </div>

        <div class="footer">evidence {{.EvidenceHash}}</div>
    </div>
</body>
</html>
`
