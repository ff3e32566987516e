// Package generation holds the provider-neutral language model vocabulary:
// chat request and response types, the errors transports report, the prompts
// used to turn free text into questions and to explain a question, and helpers
// for pulling structured data out of generated text.
//
// Concrete transports live under internal/platform (openai, gemini) and are
// driven by internal/scheduler.
package generation
