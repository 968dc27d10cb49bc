// Package rules mines association rules over per-user behavioral itemsets:
// the domains, hashtags, mentions, and channels each user engaged with.
package rules

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"coordsight/internal/schema"
)

// Rule is an antecedent -> consequent implication over entity tokens with
// its standard interestingness measures. Rules are generated per run and
// never mutated.
type Rule struct {
	Antecedent []string `json:"antecedent"`
	Consequent []string `json:"consequent"`
	Support    float64  `json:"support"`
	Confidence float64  `json:"confidence"`
	Lift       float64  `json:"lift"`
}

// Result holds the output of one mining run.
type Result struct {
	Rules []Rule

	// UserRuleHits maps every user to the number of mined rules whose
	// antecedent is a subset of the user's itemset. Users with empty
	// itemsets map to 0.
	UserRuleHits map[string]int

	// FrequentItemsets is the count of frequent itemsets found across
	// all levels.
	FrequentItemsets int

	// Truncated is set when mining stopped on a budget (wall clock or
	// itemset size) before exhausting the search space. The rules found
	// so far are still returned.
	Truncated bool
}

// MinerConfig configures the association rule miner.
type MinerConfig struct {
	MinSupport    float64
	MinConfidence float64

	// MinItemUsers is the vocabulary floor: tokens used by fewer distinct
	// users are dropped before mining to bound the candidate space.
	MinItemUsers int

	// MaxItemsetSize bounds the apriori level count. Zero means unbounded.
	MaxItemsetSize int

	// MaxDuration bounds mining wall-clock time. Zero means unbounded.
	// On expiry the miner returns the best rules found so far.
	MaxDuration time.Duration

	// MinLift and TopKRules filter the final rule set used for hit
	// counting. TopKRules <= 0 keeps every rule passing the thresholds.
	MinLift   float64
	TopKRules int
}

// DefaultMinerConfig returns the default miner configuration.
func DefaultMinerConfig() MinerConfig {
	return MinerConfig{
		MinSupport:     0.01,
		MinConfidence:  0.5,
		MinItemUsers:   3,
		MaxItemsetSize: 4,
		MaxDuration:    2 * time.Minute,
		MinLift:        1.0,
	}
}

// Miner mines frequent itemsets and association rules.
type Miner struct {
	config MinerConfig
}

// NewMiner creates a miner.
func NewMiner(cfg MinerConfig) *Miner {
	if cfg.MinSupport <= 0 {
		cfg.MinSupport = DefaultMinerConfig().MinSupport
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinerConfig().MinConfidence
	}
	if cfg.MinItemUsers < 1 {
		cfg.MinItemUsers = 1
	}
	return &Miner{config: cfg}
}

// BuildItemsets aggregates each user's entity tokens across all records.
// Users whose records carry no entities get no itemset.
func BuildItemsets(records []schema.Record) map[string]map[string]struct{} {
	itemsets := make(map[string]map[string]struct{})
	for i := range records {
		items := records[i].Items()
		if len(items) == 0 {
			continue
		}
		set := itemsets[records[i].UserID]
		if set == nil {
			set = make(map[string]struct{})
			itemsets[records[i].UserID] = set
		}
		for _, it := range items {
			set[it] = struct{}{}
		}
	}
	return itemsets
}

// Mine runs apriori over the user-itemset matrix. Mining is deterministic:
// itemset enumeration and rule ordering use a total lexicographic order, so
// identical input always yields an identical rule set.
func (m *Miner) Mine(ctx context.Context, records []schema.Record) *Result {
	itemsets := BuildItemsets(records)

	res := &Result{UserRuleHits: make(map[string]int)}
	for i := range records {
		res.UserRuleHits[records[i].UserID] = 0
	}

	// Vocabulary floor: count distinct users per token, drop rare tokens.
	tokenUsers := make(map[string]int)
	for _, set := range itemsets {
		for tok := range set {
			tokenUsers[tok]++
		}
	}
	kept := make(map[string]struct{}, len(tokenUsers))
	for tok, n := range tokenUsers {
		if n >= m.config.MinItemUsers {
			kept[tok] = struct{}{}
		}
	}
	if len(kept) < len(tokenUsers) {
		slog.Debug("vocabulary floor applied",
			"total_tokens", len(tokenUsers),
			"kept_tokens", len(kept),
			"min_item_users", m.config.MinItemUsers)
	}

	// Transactions: one sorted token slice per user with at least one kept
	// token. Support is measured against this universe.
	type tx struct {
		user  string
		items []string
	}
	var txs []tx
	for user, set := range itemsets {
		items := make([]string, 0, len(set))
		for tok := range set {
			if _, ok := kept[tok]; ok {
				items = append(items, tok)
			}
		}
		if len(items) == 0 {
			continue
		}
		sort.Strings(items)
		txs = append(txs, tx{user: user, items: items})
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].user < txs[j].user })

	n := len(txs)
	if n == 0 {
		return res
	}
	minCount := int(math.Ceil(m.config.MinSupport * float64(n)))
	if minCount < 1 {
		minCount = 1
	}

	var deadline time.Time
	if m.config.MaxDuration > 0 {
		deadline = time.Now().Add(m.config.MaxDuration)
	}
	expired := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return !deadline.IsZero() && time.Now().After(deadline)
	}

	// support holds counts for every frequent itemset across levels,
	// keyed by the joined sorted token slice.
	support := make(map[string]int)

	// Level 1.
	counts := make(map[string]int)
	for _, t := range txs {
		for _, tok := range t.items {
			counts[tok]++
		}
	}
	var level [][]string
	for tok, c := range counts {
		if c >= minCount {
			level = append(level, []string{tok})
			support[tok] = c
		}
	}
	sortItemsets(level)
	res.FrequentItemsets = len(level)

	frequent := append([][]string(nil), level...)

	// Levels 2..k: candidate generation by prefix join, apriori pruning,
	// then a counting pass over the transactions.
	for k := 2; len(level) >= 2; k++ {
		if m.config.MaxItemsetSize > 0 && k > m.config.MaxItemsetSize {
			res.Truncated = true
			break
		}
		if expired() {
			res.Truncated = true
			break
		}

		candidates := generateCandidates(level, support)
		if len(candidates) == 0 {
			break
		}

		next := make([][]string, 0, len(candidates))
		for _, cand := range candidates {
			if expired() {
				res.Truncated = true
				break
			}
			c := 0
			for _, t := range txs {
				if containsAll(t.items, cand) {
					c++
				}
			}
			if c >= minCount {
				support[itemsetKey(cand)] = c
				next = append(next, cand)
			}
		}
		if res.Truncated {
			break
		}

		sortItemsets(next)
		frequent = append(frequent, next...)
		res.FrequentItemsets += len(next)
		level = next
	}

	if res.Truncated {
		slog.Warn("rule mining truncated by budget",
			"frequent_itemsets", res.FrequentItemsets,
			"max_itemset_size", m.config.MaxItemsetSize)
	}

	res.Rules = m.generateRules(frequent, support, n)

	// Hit counting uses the filtered rule set.
	active := res.Rules
	if m.config.TopKRules > 0 && len(active) > m.config.TopKRules {
		active = active[:m.config.TopKRules]
	}
	for _, t := range txs {
		hits := 0
		for i := range active {
			if containsAll(t.items, active[i].Antecedent) {
				hits++
			}
		}
		res.UserRuleHits[t.user] = hits
	}

	return res
}

// generateRules splits every frequent itemset of size >= 2 into all
// non-empty antecedent/consequent partitions and keeps those passing the
// confidence and lift thresholds.
func (m *Miner) generateRules(frequent [][]string, support map[string]int, n int) []Rule {
	var rules []Rule
	for _, itemset := range frequent {
		k := len(itemset)
		if k < 2 {
			continue
		}
		full := float64(support[itemsetKey(itemset)]) / float64(n)

		// Enumerate proper non-empty subsets by bitmask.
		for mask := 1; mask < (1<<k)-1; mask++ {
			ant := make([]string, 0, k)
			cons := make([]string, 0, k)
			for i := 0; i < k; i++ {
				if mask&(1<<i) != 0 {
					ant = append(ant, itemset[i])
				} else {
					cons = append(cons, itemset[i])
				}
			}

			antSupp, ok := supportOf(support, ant, n)
			if !ok {
				continue
			}
			consSupp, ok := supportOf(support, cons, n)
			if !ok {
				continue
			}

			conf := full / antSupp
			if conf < m.config.MinConfidence {
				continue
			}
			lift := conf / consSupp
			if m.config.MinLift > 0 && lift < m.config.MinLift {
				continue
			}

			rules = append(rules, Rule{
				Antecedent: ant,
				Consequent: cons,
				Support:    full,
				Confidence: conf,
				Lift:       lift,
			})
		}
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Lift != rules[j].Lift {
			return rules[i].Lift > rules[j].Lift
		}
		if rules[i].Confidence != rules[j].Confidence {
			return rules[i].Confidence > rules[j].Confidence
		}
		if rules[i].Support != rules[j].Support {
			return rules[i].Support > rules[j].Support
		}
		ai, aj := strings.Join(rules[i].Antecedent, ","), strings.Join(rules[j].Antecedent, ",")
		if ai != aj {
			return ai < aj
		}
		return strings.Join(rules[i].Consequent, ",") < strings.Join(rules[j].Consequent, ",")
	})
	return rules
}

// supportOf looks up the support fraction of a sorted itemset.
func supportOf(support map[string]int, itemset []string, n int) (float64, bool) {
	c, ok := support[itemsetKey(itemset)]
	if !ok {
		return 0, false
	}
	return float64(c) / float64(n), true
}

// generateCandidates joins frequent k-itemsets sharing a (k-1)-prefix and
// prunes candidates with any infrequent k-subset.
func generateCandidates(level [][]string, support map[string]int) [][]string {
	var candidates [][]string
	for i := 0; i < len(level); i++ {
		for j := i + 1; j < len(level); j++ {
			a, b := level[i], level[j]
			k := len(a)
			if !equalPrefix(a, b, k-1) {
				break
			}
			cand := make([]string, k+1)
			copy(cand, a)
			cand[k] = b[k-1]

			if hasInfrequentSubset(cand, support) {
				continue
			}
			candidates = append(candidates, cand)
		}
	}
	return candidates
}

// hasInfrequentSubset applies the apriori property: every k-subset of a
// (k+1)-candidate must itself be frequent.
func hasInfrequentSubset(cand []string, support map[string]int) bool {
	sub := make([]string, 0, len(cand)-1)
	for skip := 0; skip < len(cand); skip++ {
		sub = sub[:0]
		for i, tok := range cand {
			if i != skip {
				sub = append(sub, tok)
			}
		}
		if _, ok := support[itemsetKey(sub)]; !ok {
			return true
		}
	}
	return false
}

func equalPrefix(a, b []string, n int) bool {
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// containsAll reports whether sorted haystack contains every element of
// sorted needle.
func containsAll(haystack, needle []string) bool {
	i := 0
	for _, want := range needle {
		for i < len(haystack) && haystack[i] < want {
			i++
		}
		if i >= len(haystack) || haystack[i] != want {
			return false
		}
		i++
	}
	return true
}

func itemsetKey(itemset []string) string {
	return strings.Join(itemset, "\x1f")
}

func sortItemsets(sets [][]string) {
	sort.Slice(sets, func(i, j int) bool {
		return itemsetKey(sets[i]) < itemsetKey(sets[j])
	})
}
