package discovery

import (
	"fmt"
	"math"
	"net"
	"strconv"
)

// MaxWeight caps instance weights so that summing them during weighted
// selection cannot overflow.
const MaxWeight = 1e6

// ServiceInstance is one passing instance returned by a lookup.
type ServiceInstance struct {
	ID      string            `json:"id"`
	Service string            `json:"service"`
	Address string            `json:"address"`
	Port    int               `json:"port"`
	Weight  float64           `json:"weight,omitempty"`
	Tags    []string          `json:"tags,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// HostPort returns "address:port".
func (i ServiceInstance) HostPort() string {
	return net.JoinHostPort(i.Address, strconv.Itoa(i.Port))
}

// URL returns "scheme://address:port".
func (i ServiceInstance) URL(scheme string) string {
	return fmt.Sprintf("%s://%s", scheme, i.HostPort())
}

// EffectiveWeight is the weight used by weighted selection: Weight capped
// at MaxWeight when positive and finite, 1 otherwise.
func (i ServiceInstance) EffectiveWeight() float64 {
	return NormalizeWeight(i.Weight)
}

// NormalizeWeight maps NaN, infinite and non-positive weights to 1 and
// caps the rest at MaxWeight.
func NormalizeWeight(w float64) float64 {
	switch {
	case math.IsNaN(w) || math.IsInf(w, 0) || w <= 0:
		return 1
	case w > MaxWeight:
		return MaxWeight
	default:
		return w
	}
}

// HasTag reports whether the instance carries tag.
func (i ServiceInstance) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
