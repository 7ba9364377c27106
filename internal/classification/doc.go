// Package classification implements the classify-variants stage. Each
// candidate frame is sent to a vision model through the rate-limited LLM
// client; usable verdicts are grouped by product variant and the best frame
// of each variant is kept.
package classification
