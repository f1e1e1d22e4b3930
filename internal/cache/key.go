package cache

import (
	"crypto/sha256"
	"fmt"

	"github.com/railboard/railboard_core/internal/models"
)

// BoardKey derives a deterministic cache key from the full normalized
// request tuple, so identical requests within the TTL window hit the same
// entry regardless of which instance served them.
func BoardKey(req models.BoardRequest) string {
	data := fmt.Sprintf("%s|%d|%s|%s|%t",
		req.StationCode, req.NumRows, req.FilterCode, req.FilterDirection, req.IncludeEnhanced)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("board:%s:%x", req.StationCode, hash[:8])
}
