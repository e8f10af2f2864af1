package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string. IDs from one process sort by creation time.
func New() string {
	return NewAt(time.Now().UTC())
}

func NewAt(ts time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	v, err := ulid.New(ulid.Timestamp(ts), entropy)
	if err != nil {
		// Monotonic entropy only fails on overflow within one millisecond.
		return ulid.Make().String()
	}
	return v.String()
}

// Time extracts the timestamp encoded in a ULID string.
func Time(s string) (time.Time, bool) {
	v, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(v.Time()), true
}
