// Package llmfactory creates chat models for the configured providers
// (GOOGLEAI, ANTHROPIC, OPENAI, BEDROCK) and selects a model by provider type or name.
package llmfactory
