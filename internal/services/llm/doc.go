// Package llm provides an OpenAI-compatible chat client used for frame
// classification.
//
// The classify-variants stage sends each candidate frame as an inline image
// together with a structured prompt requesting JSON output. The response
// names the product variant shown in the frame, the camera angle, a
// confidence score (0-1) and whether the frame is usable as a product shot.
//
// # Configuration
//
// Requires api_key and model, and optionally base_url, referer, title,
// timeout and a request rate limit.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive JSON response.
// Client.DescribeImage: send a prompt plus one image, receive JSON response.
// Client.ClassifyFrame: variant classification for one frame image.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions and
// network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Context cancellation aborts retries immediately.
// When a rate limiter is configured every attempt waits for a token first.
package llm
