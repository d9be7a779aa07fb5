// Package gemini implements provider.Provider for the Gemini generateContent
// API, a "parts" style protocol.
//
// History maps to contents as follows: user text becomes a user turn with a
// text part; assistant text and tool calls become one model turn carrying a
// text part and functionCall parts; each tool result becomes its own function
// turn carrying a functionResponse part. Parts flagged with thought are
// surfaced as thinking, never as answer text.
//
// Function calls arrive whole in a single event, so unlike the OpenAI adapter
// no fragment accumulation is needed. The api key travels in the
// x-goog-api-key header and never in the URL.
package gemini
