// Copyright 2025 Poiesic Systems
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

// Package ai defines the summarization contract used by ingestion.
//
// The summarization service is an opaque collaborator: it receives document
// text and returns a summary plus legal entities, citations and concepts.
// Callers treat every failure as a soft failure and store
// core.SummaryUnavailable instead of aborting the document.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible chat APIs through langchaingo
//   - ai/vertex: Gemini on Vertex AI
//   - ai/mock: deterministic test double
//
// Model-backed implementations share SystemPrompt, ParseSummary and Finalize,
// so they produce identically shaped summaries. Finalize backfills citations
// the model missed with the deterministic ExtractCitations scanner.
//
// # Constructor Return Type Pattern
//
// Public constructors return the ai.Summarizer interface; the mock returns
// its concrete type so tests can inspect calls:
//
//	summarizer, err := openai.NewSummarizer(cfg) // returns ai.Summarizer
//	fake := mock.NewMockSummarizer()             // returns *mock.MockSummarizer
package ai
