package config

import "sort"

// StrategyTable is a read-only lookup over the configured strategies.
type StrategyTable struct {
	byName map[string]Strategy
	names  []string
}

// NewStrategyTable indexes strategies by name. Later duplicates are ignored.
func NewStrategyTable(strategies []Strategy) StrategyTable {
	table := StrategyTable{byName: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		if _, ok := table.byName[s.Name]; ok {
			continue
		}
		table.byName[s.Name] = s
		table.names = append(table.names, s.Name)
	}
	sort.Strings(table.names)
	return table
}

// StrategyTable indexes the configured strategies.
func (c *Config) StrategyTable() StrategyTable { return NewStrategyTable(c.Strategies) }

// Lookup returns the parameters for name.
func (t StrategyTable) Lookup(name string) (Strategy, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Names lists configured strategies in sorted order.
func (t StrategyTable) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Expectancy is the Van Tharp expectancy in R per trade.
func (s Strategy) Expectancy() float64 {
	loss := s.AvgLossR
	if loss < 0 {
		loss = -loss
	}
	return s.WinRate*s.AvgWinR - (1-s.WinRate)*loss
}
