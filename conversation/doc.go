// Package conversation drives the model and tool exchange for a single query.
package conversation
