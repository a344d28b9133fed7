package query

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key identifies a cached read by function name and arguments. Its string
// form is "name:arg1:arg2".
type Key struct {
	Name string
	Args []string
}

// NewKey builds a Key, normalising arguments so equal calls produce equal
// keys. Addresses are lowercased hex.
func NewKey(name string, args ...any) Key {
	out := make([]string, 0, len(args))
	for _, a := range args {
		out = append(out, argString(a))
	}
	return Key{Name: name, Args: out}
}

func argString(a any) string {
	switch v := a.(type) {
	case string:
		if common.IsHexAddress(v) {
			return strings.ToLower(v)
		}
		return v
	case common.Address:
		return strings.ToLower(v.Hex())
	case *big.Int:
		if v == nil {
			return "0"
		}
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// String returns the canonical key text.
func (k Key) String() string {
	if len(k.Args) == 0 {
		return k.Name
	}
	return k.Name + ":" + strings.Join(k.Args, ":")
}

// Target selects cache entries for invalidation.
type Target struct {
	text   string
	prefix bool
}

// Exact targets exactly one key.
func Exact(k Key) Target {
	return Target{text: k.String()}
}

// Prefix targets every key whose leading segments equal name and args, e.g.
// Prefix("alphas") matches "alphas:0:20" but not "alpha:1".
func Prefix(name string, args ...any) Target {
	return Target{text: NewKey(name, args...).String(), prefix: true}
}

func (t Target) matches(key string) bool {
	if key == t.text {
		return true
	}
	return t.prefix && strings.HasPrefix(key, t.text+":")
}

// String returns the target text, with a trailing ":*" for prefixes.
func (t Target) String() string {
	if t.prefix {
		return t.text + ":*"
	}
	return t.text
}
