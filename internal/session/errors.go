package session

import (
	"context"
	"errors"

	"github.com/nyashahama/geoanalyzer/internal/ai"
	"github.com/nyashahama/geoanalyzer/internal/conversation"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
)

// UserMessage maps a pipeline error to the sentence shown to the user.
// Order matters: configuration problems are reported before upstream ones
// because an unconfigured provider is wrapped by the fallback completer.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSuperseded):
		return "This analysis was replaced by a newer request."
	case errors.Is(err, ErrInvalidLocation), errors.Is(err, geodata.ErrEmptyAddress):
		return "Enter an address or pick a valid point on the map."
	case errors.Is(err, geodata.ErrNotFound):
		return "Location not found. Try a more specific address or pick a point on the map."
	case errors.Is(err, ai.ErrNotConfigured), errors.Is(err, ErrNoGeocoder):
		return "The analysis service is not configured. Set an AI provider API key and restart."
	case errors.Is(err, conversation.ErrIterationLimitExceeded):
		return "The analysis needed too many steps and was stopped. Please try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "The analysis took too long. Please try again."
	case errors.Is(err, geodata.ErrServiceUnavailable), errors.Is(err, ai.ErrUpstream):
		return "An external data or AI service is unavailable. Please try again in a moment."
	default:
		return "The analysis failed. Please try again."
	}
}
