// Package golly is a collection of reusable common utilities for the Go programming language.
//
// Golly provides a wide range of sub-packages that cover common application needs
// including logging, configuration, REST client/server, messaging, codec, collections,
// CLI, GenAI providers, and more.
//
// Each sub-package is independently importable:
//
//	import "oss.mash.dev/mash/rest"      // REST client and server
//	import "oss.mash.dev/mash/l3"        // Logging
//	import "oss.mash.dev/mash/codec"     // Encoding/decoding (JSON, XML, YAML)
//	import "oss.mash.dev/mash/config"    // Application configuration
//	import "oss.mash.dev/mash/messaging" // Generic messaging API
//	import "oss.mash.dev/mash/genai"     // Generative AI provider abstractions
//
// For a complete list of packages and documentation, see:
// https://pkg.go.dev/oss.mash.dev/mash
package golly
