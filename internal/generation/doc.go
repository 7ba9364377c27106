// Package generation implements the generate-images stage, which asks an
// external image service for studio shots of every classified variant.
//
// Unlike the other stages, generate-images takes a generic option map: the
// service's parameters are provider specific, so every key is forwarded
// verbatim in the request's "options" object. Three keys are also read by
// the stage itself:
//
//	model               overrides [generation] model
//	style               overrides [generation] style
//	images_per_variant  number of images requested per variant
//
// Request body:
//
//	{"model": "...", "style": "...", "prompt": "...", "variant": "...",
//	 "image": "data:image/jpeg;base64,...", "options": {...}}
//
// Response body:
//
//	{"images": [{"b64_json": "...", "url": "...", "content_type": "image/png"}]}
//
// Each entry carries either inline base64 data or a URL to fetch.
package generation
