package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
)

const pipelineKeyHeader = "X-API-Key"

// PipelineAuthMiddleware guards the ingestion endpoints that feed the property
// catalog and the price series. apiKeys is a comma-separated list so that a
// new key can be rolled out before the old one is withdrawn. An empty list
// disables the endpoints.
func PipelineAuthMiddleware(apiKeys string) gin.HandlerFunc {
	keys := parseKeys(apiKeys)

	return func(c *gin.Context) {
		if len(keys) == 0 {
			abortWithError(c, apperrors.ErrPipelineNotConfigured)
			return
		}

		presented := []byte(c.GetHeader(pipelineKeyHeader))
		if !matchesAny(presented, keys) {
			logger.Named("pipeline").Warnw("Rejected pipeline request",
				"request_id", RequestID(c),
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
				"key_present", len(presented) > 0,
			)
			abortWithError(c, apperrors.ErrInvalidAPIKey)
			return
		}
		c.Next()
	}
}

func parseKeys(raw string) [][]byte {
	var keys [][]byte
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return keys
}

// matchesAny compares against every key so timing does not reveal which one matched.
func matchesAny(presented []byte, keys [][]byte) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare(presented, k)
	}
	return match == 1
}
