package repotest

import (
	"fmt"
	"sync/atomic"
)

var documentSeq atomic.Int64

// uniqueDocument yields an 11-digit string that is distinct per call.
func uniqueDocument() string {
	return fmt.Sprintf("%011d", 10000000000+documentSeq.Add(1))
}
