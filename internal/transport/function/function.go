// Package function binds the scrape engine to a one-shot serverless
// runtime. The handler serves exactly one request per invocation; the
// session pool still guarantees release on every path, so a warm
// container reuses its browser across invocations.
package function

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/pagebound/scrape/internal/transport"
	"github.com/pagebound/scrape/pkg/models"
)

// Handler is the lambda entry point shape.
type Handler func(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error)

// NewHandler adapts the shared invoker to the serverless signature.
// Scrape failures are reported inside the response envelope, not as
// invocation errors, so the runtime does not retry them on its own.
func NewHandler(inv *transport.Invoker) Handler {
	return func(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error) {
		return inv.Invoke(ctx, &req), nil
	}
}

// Start hands the handler to the lambda runtime. Blocks forever.
func Start(inv *transport.Invoker) {
	lambda.Start(NewHandler(inv))
}
