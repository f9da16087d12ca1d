package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.jetify.com/typeid"
)

// New returns a sortable, prefix-qualified id such as "cus_01h2x...". The
// prefix must be lowercase ASCII letters or underscores.
func New(prefix string) string {
	tid, err := typeid.WithPrefix(prefix)
	if err == nil {
		return tid.String()
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%d%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
