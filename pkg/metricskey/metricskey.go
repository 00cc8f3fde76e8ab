package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsSessionsOpened is base for counter metric for tool server sessions opened
	StatsSessionsOpened = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sessions_opened",
		Help:         "stats_sessions_opened provides total tool server sessions opened",
		RequiredTags: []string{"server"},
	}

	StatsSessionsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sessions_failed",
		Help:         "stats_sessions_failed provides total tool server sessions failed to open",
		RequiredTags: []string{"server"},
	}

	StatsQueriesSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_queries_succeeded",
		Help:         "stats_queries_succeeded provides total queries answered",
		RequiredTags: []string{"model"},
	}

	StatsQueriesFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_queries_failed",
		Help:         "stats_queries_failed provides total queries failed",
		RequiredTags: []string{"model"},
	}

	StatsHTTPRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_http_requests",
		Help:         "stats_http_requests provides total API requests served",
		RequiredTags: []string{"method", "path", "status"},
	}

	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_failed",
		Help:         "stats_llm_calls_failed provides total LLM calls failed",
		RequiredTags: []string{"model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"model"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfConnect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_connect",
		Help:         "perf_connect provides duration of connecting to a tool server",
		RequiredTags: []string{"server"},
	}

	PerfQuery = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_query",
		Help:         "perf_query provides duration of a query",
		RequiredTags: []string{"model"},
	}

	PerfHTTPRequest = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_http_request",
		Help:         "perf_http_request provides duration of API request",
		RequiredTags: []string{"method", "path"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of LLM call",
		RequiredTags: []string{"model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfConnect,
	&PerfHTTPRequest,
	&PerfLLMCall,
	&PerfQuery,
	&PerfToolCall,
	&StatsHTTPRequests,
	&StatsLLMCallsFailed,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsLLMTotalTokens,
	&StatsQueriesFailed,
	&StatsQueriesSucceeded,
	&StatsSessionsFailed,
	&StatsSessionsOpened,
	&StatsToolCallsFailed,
	&StatsToolCallsSucceeded,
}
