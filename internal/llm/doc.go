// Package llm is the external classifier tier. It asks a language model provider
// (OpenAI, Gemini or Anthropic) whether an invoice item is subject to single-phase
// PIS/COFINS and parses the JSON answer into a model.Verdict. Requests are bounded by a
// token-bucket rate limiter and are never retried automatically.
package llm
