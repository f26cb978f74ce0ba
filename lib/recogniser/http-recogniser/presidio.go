/*
 * Copyright 2022 Medicines Discovery Catapult
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *     http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package http_recogniser talks to a Presidio-analyzer style REST detector.
package http_recogniser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/llm-privacy/anonymisation-api/lib"
	"github.com/llm-privacy/anonymisation-api/lib/recogniser"
)

const DefaultTimeout = 5 * time.Second

type PresidioConfig struct {
	// Url is the analyze endpoint, e.g. http://localhost:5002/analyze.
	Url     string
	Timeout time.Duration
}

func NewPresidioClient(conf PresidioConfig) recogniser.Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &presidio{
		url:        conf.Url,
		healthUrl:  strings.TrimSuffix(conf.Url, "/analyze") + "/health",
		httpClient: &http.Client{Timeout: timeout},
	}
}

type presidio struct {
	url        string
	healthUrl  string
	httpClient lib.HttpClient
}

type presidioRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

func (p *presidio) Recognise(ctx context.Context, text string, language string) ([]lib.Candidate, error) {
	body, err := json.Marshal(presidioRequest{Text: text, Language: language})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recogniser.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", recogniser.ErrUnavailable, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recogniser.ErrUnavailable, err)
	}

	var results []presidioResult
	if err := json.Unmarshal(b, &results); err != nil {
		return nil, fmt.Errorf("invalid detector response: %w", err)
	}

	return candidatesFromResults(text, results), nil
}

func (p *presidio) Ready() bool {
	req, err := http.NewRequest(http.MethodGet, p.healthUrl, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// candidatesFromResults converts the detector's rune offsets into byte
// offsets and drops results that fall outside the text.
func candidatesFromResults(text string, results []presidioResult) []lib.Candidate {
	runes := []rune(text)
	byteOffsets := make([]int, len(runes)+1)
	offset := 0
	for i, r := range runes {
		byteOffsets[i] = offset
		offset += len(string(r))
	}
	byteOffsets[len(runes)] = offset

	candidates := make([]lib.Candidate, 0, len(results))
	for _, result := range results {
		if result.Start < 0 || result.End <= result.Start || result.End > len(runes) {
			continue
		}
		start := byteOffsets[result.Start]
		end := byteOffsets[result.End]
		candidates = append(candidates, lib.Candidate{
			Text:       text[start:end],
			Start:      start,
			End:        end,
			EntityType: result.EntityType,
			Score:      result.Score,
		})
	}
	return candidates
}
