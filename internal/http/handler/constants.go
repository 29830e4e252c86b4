package handler

const (
	jsonKeyURL     = "url"
	jsonKeySuccess = "success"
	jsonKeyVersion = "version"

	paramKey     = "key"
	paramID      = "id"
	queryProject = "project"

	headerCacheControl    = "Cache-Control"
	cacheControlImmutable = "public, max-age=31536000, immutable"
)

const (
	msgContentTypeJSONRequired = "content type must be application/json"
	msgInvalidRequestBody      = "invalid request body"
	msgReadBodyFail            = "failed to read request body"
	msgPayloadTooLarge         = "request body too large"
)
