// Package upload implements the upload-images stage, which stores every
// generated image in an S3 compatible bucket. MinIO and other self-hosted
// stores are reached through [upload] endpoint with path-style addressing.
package upload
