// Package llms provides a provider-neutral view of chat models that are able
// to request function (tool) calls.
//
// Each subpackage implements the Model interface for one provider:
// googleai (Gemini, the default), anthropic, openai and bedrock (Anthropic
// models served by Amazon Bedrock).
//
// The `llms.go` file contains the Model interface and provider types,
// `generatecontent.go` the message and response types, and `options.go`
// the per-call options.
package llms
