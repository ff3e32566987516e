// Package gemini implements scheduler.Transport on top of Google's Gemini API
// through the google.golang.org/genai client.
//
// Chat requests are translated to GenerateContent calls: system messages
// become the system instruction and assistant turns use the "model" role. The
// answer is returned in the openai-compatible generation.ChatResponse shape so
// the rest of the application does not care which provider served a request.
//
// Error handling:
//   - genai.APIError answers become *generation.ProviderError and are not retried
//   - safety blocks wrap generation.ErrContentBlocked
//   - empty candidates wrap generation.ErrInvalidResponse
//   - anything else (timeouts, network failures) is returned as is, so the
//     scheduler retries it
package gemini
