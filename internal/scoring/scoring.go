// Package scoring combines the independent coordination signals into one
// statistically comparable suspicion score per user and per community.
package scoring

import (
	"math"
	"sort"
)

// Signal identifies one score channel.
type Signal string

const (
	SignalSNA            Signal = "sna"
	SignalARL            Signal = "arl"
	SignalCommunity      Signal = "community"
	SignalNLPCredibility Signal = "nlp_credibility"
	SignalNLPSimilarity  Signal = "nlp_similarity"
)

// AllSignals lists every channel in canonical order.
var AllSignals = []Signal{
	SignalSNA, SignalARL, SignalCommunity, SignalNLPCredibility, SignalNLPSimilarity,
}

// SignalSet is the explicit set of channels available in a run. Missing
// optional channels redistribute their weight instead of scoring as zero,
// so runs without NLP input are not systematically under-scored.
type SignalSet map[Signal]bool

// Weights holds the per-channel combination weights.
type Weights struct {
	SNA            float64
	ARL            float64
	Community      float64
	NLPCredibility float64
	NLPSimilarity  float64
}

// DefaultWeights returns the default combination weights.
func DefaultWeights() Weights {
	return Weights{
		SNA:            0.45,
		ARL:            0.30,
		Community:      0.05,
		NLPCredibility: 0.15,
		NLPSimilarity:  0.05,
	}
}

func (w Weights) of(s Signal) float64 {
	switch s {
	case SignalSNA:
		return w.SNA
	case SignalARL:
		return w.ARL
	case SignalCommunity:
		return w.Community
	case SignalNLPCredibility:
		return w.NLPCredibility
	case SignalNLPSimilarity:
		return w.NLPSimilarity
	}
	return 0
}

// Effective returns the per-channel weights after redistributing the weight
// of unavailable channels proportionally over the available ones. The
// result sums to 1 whenever at least one available channel has positive
// configured weight.
func (w Weights) Effective(available SignalSet) map[Signal]float64 {
	total := 0.0
	for _, s := range AllSignals {
		if available[s] {
			total += w.of(s)
		}
	}
	out := make(map[Signal]float64, len(AllSignals))
	for _, s := range AllSignals {
		if available[s] && total > 0 {
			out[s] = w.of(s) / total
		} else {
			out[s] = 0
		}
	}
	return out
}

// NLPScores holds externally supplied per-user NLP features.
type NLPScores struct {
	Credibility float64 `json:"credibility"`
	Similarity  float64 `json:"similarity"`
}

// Inputs carries the per-user raw signals produced by the upstream stages.
// Maps may cover different user sets; the aggregator scores the union.
type Inputs struct {
	// WeightedDegree is the co-participation graph signal.
	WeightedDegree map[string]float64

	// ClusterCounts is the exact-match cluster membership count.
	ClusterCounts map[string]int

	// RuleHits is the association rule hit count.
	RuleHits map[string]int

	// CommunityByUser maps users to community ids (-1 when unassigned).
	CommunityByUser map[string]int

	// CommunityDensity is each user's community density.
	CommunityDensity map[string]float64

	// NLP is nil when no NLP collaborator output is present for the run.
	NLP map[string]NLPScores
}

// Available derives the explicit available-signal set from the inputs.
// SNA and ARL are always carried: an empty graph or rule set is a valid
// zero-information state, not a missing channel.
func (in *Inputs) Available() SignalSet {
	set := SignalSet{
		SignalSNA: true,
		SignalARL: true,
	}
	if len(in.CommunityDensity) > 0 {
		set[SignalCommunity] = true
	}
	if len(in.NLP) > 0 {
		set[SignalNLPCredibility] = true
		set[SignalNLPSimilarity] = true
	}
	return set
}

// UserScore holds raw and z-normalized values per channel plus the final
// weighted score for one user.
type UserScore struct {
	UserID    string `json:"user_id"`
	Community int    `json:"community"`

	RawSNA            float64 `json:"raw_sna"`
	RawARL            float64 `json:"raw_arl"`
	RawCommunity      float64 `json:"raw_community"`
	RawNLPCredibility float64 `json:"raw_nlp_credibility"`
	RawNLPSimilarity  float64 `json:"raw_nlp_similarity"`

	ZSNA            float64 `json:"z_sna"`
	ZARL            float64 `json:"z_arl"`
	ZCommunity      float64 `json:"z_community"`
	ZNLPCredibility float64 `json:"z_nlp_credibility"`
	ZNLPSimilarity  float64 `json:"z_nlp_similarity"`

	Score float64 `json:"score"`
}

// CommunityScore aggregates member scores over one community.
type CommunityScore struct {
	CommunityID int      `json:"community_id"`
	MeanScore   float64  `json:"mean_score"`
	MaxScore    float64  `json:"max_score"`
	MemberCount int      `json:"member_count"`
	Density     float64  `json:"density"`
	TopUsers    []string `json:"top_users"`
}

// Result is the aggregator output.
type Result struct {
	// Users is sorted by score descending, user id ascending on ties.
	Users []UserScore

	// Communities is sorted by mean score descending.
	Communities []CommunityScore

	// EffectiveWeights records the weights actually applied, after any
	// redistribution for missing channels.
	EffectiveWeights map[Signal]float64

	Available SignalSet
}

// AggregatorConfig configures the score aggregator.
type AggregatorConfig struct {
	Weights Weights

	// TopUsersPerCommunity sizes CommunityScore.TopUsers.
	TopUsersPerCommunity int
}

// DefaultAggregatorConfig returns the default aggregator configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Weights:              DefaultWeights(),
		TopUsersPerCommunity: 10,
	}
}

// Aggregator joins the per-user signals into final scores.
type Aggregator struct {
	config AggregatorConfig
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.TopUsersPerCommunity <= 0 {
		cfg.TopUsersPerCommunity = 10
	}
	return &Aggregator{config: cfg}
}

// Aggregate computes z-normalized channels and the final weighted score for
// every user appearing in any input map.
func (a *Aggregator) Aggregate(in Inputs) *Result {
	users := make(map[string]struct{})
	for u := range in.WeightedDegree {
		users[u] = struct{}{}
	}
	for u := range in.ClusterCounts {
		users[u] = struct{}{}
	}
	for u := range in.RuleHits {
		users[u] = struct{}{}
	}
	for u := range in.CommunityByUser {
		users[u] = struct{}{}
	}
	for u := range in.NLP {
		users[u] = struct{}{}
	}

	ordered := make([]string, 0, len(users))
	for u := range users {
		ordered = append(ordered, u)
	}
	sort.Strings(ordered)

	available := in.Available()
	weights := a.config.Weights.Effective(available)

	// Raw channel vectors in user order. SNA blends graph centrality with
	// cluster membership so both topology and temporal synchrony count.
	raw := map[Signal][]float64{}
	for _, s := range AllSignals {
		raw[s] = make([]float64, len(ordered))
	}
	for i, u := range ordered {
		raw[SignalSNA][i] = in.WeightedDegree[u] + float64(in.ClusterCounts[u])
		raw[SignalARL][i] = float64(in.RuleHits[u])
		raw[SignalCommunity][i] = in.CommunityDensity[u]
		if nlp, ok := in.NLP[u]; ok {
			raw[SignalNLPCredibility][i] = nlp.Credibility
			raw[SignalNLPSimilarity][i] = nlp.Similarity
		}
	}

	z := map[Signal][]float64{}
	for _, s := range AllSignals {
		z[s] = ZScores(raw[s])
	}

	res := &Result{
		Available:        available,
		EffectiveWeights: weights,
		Users:            make([]UserScore, len(ordered)),
	}

	for i, u := range ordered {
		community := -1
		if cid, ok := in.CommunityByUser[u]; ok {
			community = cid
		}
		us := UserScore{
			UserID:    u,
			Community: community,

			RawSNA:            raw[SignalSNA][i],
			RawARL:            raw[SignalARL][i],
			RawCommunity:      raw[SignalCommunity][i],
			RawNLPCredibility: raw[SignalNLPCredibility][i],
			RawNLPSimilarity:  raw[SignalNLPSimilarity][i],

			ZSNA:            z[SignalSNA][i],
			ZARL:            z[SignalARL][i],
			ZCommunity:      z[SignalCommunity][i],
			ZNLPCredibility: z[SignalNLPCredibility][i],
			ZNLPSimilarity:  z[SignalNLPSimilarity][i],
		}
		us.Score = weights[SignalSNA]*us.ZSNA +
			weights[SignalARL]*us.ZARL +
			weights[SignalCommunity]*us.ZCommunity +
			weights[SignalNLPCredibility]*us.ZNLPCredibility +
			weights[SignalNLPSimilarity]*us.ZNLPSimilarity
		res.Users[i] = us
	}

	sort.Slice(res.Users, func(i, j int) bool {
		if res.Users[i].Score != res.Users[j].Score {
			return res.Users[i].Score > res.Users[j].Score
		}
		return res.Users[i].UserID < res.Users[j].UserID
	})

	res.Communities = a.aggregateCommunities(res.Users)
	return res
}

// aggregateCommunities rolls user scores up to their communities.
// Unassigned users (community -1) are not a community.
func (a *Aggregator) aggregateCommunities(users []UserScore) []CommunityScore {
	byID := make(map[int][]UserScore)
	for _, u := range users {
		if u.Community < 0 {
			continue
		}
		byID[u.Community] = append(byID[u.Community], u)
	}

	out := make([]CommunityScore, 0, len(byID))
	for cid, members := range byID {
		// Members arrive score-sorted because users is score-sorted.
		sum, max := 0.0, math.Inf(-1)
		for _, m := range members {
			sum += m.Score
			if m.Score > max {
				max = m.Score
			}
		}
		top := len(members)
		if top > a.config.TopUsersPerCommunity {
			top = a.config.TopUsersPerCommunity
		}
		topUsers := make([]string, top)
		for i := 0; i < top; i++ {
			topUsers[i] = members[i].UserID
		}
		out = append(out, CommunityScore{
			CommunityID: cid,
			MeanScore:   sum / float64(len(members)),
			MaxScore:    max,
			MemberCount: len(members),
			Density:     members[0].RawCommunity,
			TopUsers:    topUsers,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanScore != out[j].MeanScore {
			return out[i].MeanScore > out[j].MeanScore
		}
		return out[i].CommunityID < out[j].CommunityID
	})
	return out
}

// ZScores normalizes a vector to zero mean and unit variance using the
// population standard deviation. A zero-variance vector maps to all zeros:
// a constant signal carries no information and must not distort the
// combined score.
func ZScores(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}
