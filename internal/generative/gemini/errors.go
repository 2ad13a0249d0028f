package gemini

import (
	stderrors "errors"

	"google.golang.org/genai"
)

// asAPIError extracts a genai.APIError, which the SDK returns by value.
func asAPIError(err error, target *genai.APIError) bool {
	if stderrors.As(err, target) {
		return true
	}
	var p *genai.APIError
	if stderrors.As(err, &p) && p != nil {
		*target = *p
		return true
	}
	return false
}
