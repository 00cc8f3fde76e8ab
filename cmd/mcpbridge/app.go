package main

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/config"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/lifecycle"
	"github.com/effective-security/mcpbridge/mcp/session"
	"github.com/effective-security/mcpbridge/pkg/llmfactory"
	"github.com/effective-security/mcpbridge/store"
	"github.com/redis/go-redis/v9"
)

// newFactory returns the model factory, replaced in tests
var newFactory = func(cfg *llmfactory.Config) llmfactory.Factory {
	return llmfactory.New(cfg)
}

// sessionOptions returns the extra session options, replaced in tests
var sessionOptions lifecycle.SessionOptionsFunc

// newManager returns the Manager configured by cfg,
// the returned close function releases the history store
func newManager(cfg *config.Config, callback conversation.Callback) (*lifecycle.Manager, func(), error) {
	history, closeStore, err := newHistoryStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	base := []session.Option{
		session.WithHandshakeTimeout(cfg.Session.HandshakeTimeout.Duration()),
		session.WithTerminateDuration(cfg.Session.TerminateDuration.Duration()),
		session.WithInterpreters(cfg.Session.Interpreters),
		session.WithClientInfo(session.ClientName, Version),
	}
	opts := []lifecycle.Option{
		lifecycle.WithHistoryStore(history),
		lifecycle.WithSessionOptionsFunc(func(identity string) []session.Option {
			if sessionOptions == nil {
				return base
			}
			return append(slices.Clone(base), sessionOptions(identity)...)
		}),
	}
	if callback != nil {
		opts = append(opts, lifecycle.WithCallback(callback))
	}

	mgr, err := lifecycle.New(newFactory(cfg.LLM), lifecycle.Config{
		Models:        cfg.Conversation.Models,
		MaxToolCalls:  cfg.Conversation.MaxToolCalls,
		HistoryWindow: cfg.Conversation.HistoryWindow,
		QueryTimeout:  cfg.Conversation.QueryTimeout.Duration(),
		SystemPrompt:  cfg.Conversation.SystemPrompt,
	}, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return mgr, closeStore, nil
}

func newHistoryStore(cfg *config.Config) (store.HistoryStore, func(), error) {
	switch cfg.Store.Kind {
	case config.StoreRedis:
		ro, err := redis.ParseURL(cfg.Store.Redis.URL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "invalid redis url")
		}
		client := redis.NewClient(ro)
		st := store.NewRedisStore(client, store.RedisOptions{
			Prefix:   cfg.Store.Redis.Prefix,
			TTL:      cfg.Store.Redis.TTL.Duration(),
			MaxTurns: cfg.Store.MaxTurns,
		})
		return st, func() { _ = client.Close() }, nil
	default:
		return store.NewMemoryStore(cfg.Store.MaxTurns), func() {}, nil
	}
}
