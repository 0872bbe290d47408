package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// Meta keys rendered in the response envelope.
const (
	MetaCacheHit       = "cache_hit"
	MetaProcessingTime = "processing_time_ms"
)

// ResponseMeta collects envelope metadata while a request is handled.
type ResponseMeta struct {
	start    time.Time
	cacheHit *bool
}

// Map renders the metadata, stamping processing time at the moment the body is written.
func (m *ResponseMeta) Map() map[string]interface{} {
	if m == nil {
		return nil
	}
	out := map[string]interface{}{
		MetaProcessingTime: time.Since(m.start).Milliseconds(),
	}
	if m.cacheHit != nil {
		out[MetaCacheHit] = *m.cacheHit
	}
	return out
}

// WithResponseMeta attaches a ResponseMeta to every request.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &ResponseMeta{start: time.Now()})
		c.Next()
	}
}

// SetCacheHit records whether a progress read was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	if meta := metaFrom(c); meta != nil {
		meta.cacheHit = &hit
	}
}

// ExtractMeta returns the envelope meta for the request, or nil outside WithResponseMeta.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	return metaFrom(c).Map()
}

func metaFrom(c *gin.Context) *ResponseMeta {
	if c == nil {
		return nil
	}
	if v, ok := c.Get(responseMetaKey); ok {
		if meta, ok := v.(*ResponseMeta); ok {
			return meta
		}
	}
	return nil
}
