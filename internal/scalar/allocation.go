package scalar

import (
	"fmt"
	"strconv"
	"strings"
)

// Strategy selects how an allocation obtains its address.
type Strategy int

const (
	// StrategyOffset takes the address at a fixed offset exclusively.
	StrategyOffset Strategy = iota
	// StrategyAlias takes the address at a fixed offset without claiming it.
	StrategyAlias
	// StrategyEUI derives an IPv6 address from the interface MAC.
	StrategyEUI
)

func (s Strategy) String() string {
	switch s {
	case StrategyOffset:
		return "OFFSET"
	case StrategyAlias:
		return "ALIAS"
	case StrategyEUI:
		return "EUI"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Allocation is a request for an address in a named domain:
//
//	domain/EUI
//	domain/ALIAS/<offset>
//	domain/<offset>
//	domain/OFFSET/<offset>
type Allocation struct {
	Domain   string
	Strategy Strategy
	// Offset is unset for StrategyEUI.
	Offset uint64

	text string
}

// ParseAllocation parses an allocation spec.
func ParseAllocation(text string) (Allocation, error) {
	domain, strategy, ok := strings.Cut(text, "/")
	if !ok || domain == "" {
		return Allocation{}, fmt.Errorf("expected domain/strategy")
	}
	a := Allocation{Domain: domain, text: text}

	switch {
	case strategy == "EUI":
		a.Strategy = StrategyEUI
		return a, nil
	case strings.HasPrefix(strategy, "ALIAS/"):
		a.Strategy = StrategyAlias
		strategy = strings.TrimPrefix(strategy, "ALIAS/")
	default:
		a.Strategy = StrategyOffset
		strategy = strings.TrimPrefix(strategy, "OFFSET/")
	}

	offset, err := strconv.ParseUint(strategy, 10, 64)
	if err != nil {
		return Allocation{}, fmt.Errorf("allocation strategy %s requires a non-negative integer offset, got %q",
			a.Strategy, strategy)
	}
	a.Offset = offset
	return a, nil
}

func (a Allocation) String() string {
	if a.text != "" {
		return a.text
	}
	if a.Strategy == StrategyEUI {
		return a.Domain + "/EUI"
	}
	return fmt.Sprintf("%s/%s/%d", a.Domain, a.Strategy, a.Offset)
}
