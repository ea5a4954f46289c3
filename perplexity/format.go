package perplexity

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const (
	referencesHeading = "\n\n---\nReferences:\n"
	noCitations       = "No citations available"
	rawPreviewLimit   = 500

	invalidJSONMessage = `Error: The API returned an invalid JSON response. Please try again with output_format set to "json" to see the raw response.`
	shapeMessage       = "There was an error converting the response to markdown, please try again but set the output_format to json."
)

// Format renders a successful upstream body in the requested mode. Decode
// failures in markdown mode produce error-flagged diagnostics that ask the
// caller to retry with output_format "json"; there is no silent fallback to
// the raw body.
func Format(format OutputFormat, body []byte) Result {
	if format != OutputMarkdown {
		return Result{Text: string(body)}
	}

	resp, err := DecodeResponse(body)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) && decodeErr.Kind == DecodeSyntax {
			return Result{
				Text:    fmt.Sprintf("%s\n\nPartial raw response: %s", invalidJSONMessage, preview(body)),
				IsError: true,
				Failure: FailureDecode,
			}
		}
		return Result{Text: shapeMessage, IsError: true, Failure: FailureDecode}
	}
	return Result{Text: renderMarkdown(resp)}
}

// renderMarkdown joins every choice's content with a blank line and appends a
// numbered reference list. resp must have passed DecodeResponse, which
// rejects choices without message content.
func renderMarkdown(resp ChatResponse) string {
	contents := make([]string, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		contents = append(contents, *choice.Message.Content)
	}

	var b strings.Builder
	b.WriteString(strings.Join(contents, "\n\n"))
	b.WriteString(referencesHeading)
	if len(resp.Citations) == 0 {
		b.WriteString(noCitations)
	} else {
		for i, url := range resp.Citations {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "[%d] %s", i+1, url)
		}
	}
	return strings.TrimSpace(b.String())
}

func preview(body []byte) string {
	if len(body) <= rawPreviewLimit {
		return string(body)
	}
	return string(body[:rawPreviewLimit])
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}
