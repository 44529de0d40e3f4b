package hashset

import (
	"github.com/cockroachdb/errors"
	"github.com/spaolacci/murmur3"
	"github.com/ssargent/bubo/pkg/codec"
)

// Names accepted by HashFunc.
const (
	HashJenkins = "jenkins"
	HashMurmur3 = "murmur3"
)

// HashFunc returns the bucketing function registered under name. seed is only
// used by murmur3.
func HashFunc(name string, seed uint32) (func([]byte) uint32, error) {
	switch name {
	case "", HashJenkins:
		return codec.Hash, nil
	case HashMurmur3:
		return func(b []byte) uint32 { return murmur3.Sum32WithSeed(b, seed) }, nil
	default:
		return nil, errors.Newf("hashset: unknown hash function %q", name)
	}
}
