package perplexity

// FailureKind classifies an error-flagged Result for logs and telemetry.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureConfiguration  FailureKind = "configuration"
	FailureRequest        FailureKind = "request"
	FailureUpstreamStatus FailureKind = "upstream_status"
	FailureTransport      FailureKind = "transport"
	FailureDecode         FailureKind = "decode"
)

// Result is a rendered tool result: one text body and an error flag.
type Result struct {
	Text    string
	IsError bool
	Failure FailureKind
}

func errorResult(kind FailureKind, text string) Result {
	return Result{Text: text, IsError: true, Failure: kind}
}
