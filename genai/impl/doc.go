// Package impl provides concrete implementations of the genai.Provider interface.
//
// Currently supported providers:
//   - OpenAI (ChatGPT, GPT-4, etc.)
//   - Ollama (local LLM inference via OpenAI-compatible API)
package impl
