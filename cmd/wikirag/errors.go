package main

import (
	"context"
	"errors"

	"wikirag/internal/domain"
)

// userMessage turns known failures into actionable one-liners.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrIndexNotFound):
		return err.Error() + "; run `wikirag index` first"
	case errors.Is(err, domain.ErrAuth):
		return err.Error() + "; check the credentials in your environment or .env file"
	case errors.Is(err, domain.ErrGeneration):
		return err.Error() + "; is the model server running?"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return err.Error()
	}
}
