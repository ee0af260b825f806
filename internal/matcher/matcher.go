// Package matcher implements rotating-index provider/job matching (C4): a
// fairness-preserving scan over a candidate pool under per-provider quotas.
package matcher

import "github.com/holiman/uint256"

// Provider is an eligibility candidate. Stake is carried as a 256-bit
// integer (the same representation the penalty engine reads it in) even
// though the rotating scan itself does not rank by it.
type Provider struct {
	ID            string
	Status        string
	Stake         *uint256.Int
	MaxConcurrent int
	Health        float64
	Avail         int
	Region        string
}

// StatusActive is the only eligible provider status.
const StatusActive = "ACTIVE"

// Job is a unit of work to assign.
type Job struct {
	ID     string
	Kind   string
	Region string // "" means no region constraint
}

// Assignment is one successful job-to-provider match.
type Assignment struct {
	JobID      string
	ProviderID string
}

// JailChecker reports whether a provider is currently jailed or on
// cooldown. *penalty.Engine satisfies this interface directly.
type JailChecker interface {
	IsJailed(providerID string, now int64) bool
	IsOnCooldown(providerID string, now int64) bool
}

// ClaimRecorder persists a successful match. If it returns an error the
// assignment is rolled back (the provider's avail counter is restored).
type ClaimRecorder interface {
	RecordClaim(jobID, providerID string) error
}

// RegionPolicy decides whether a provider's region satisfies a job's region
// constraint. The zero value (nil) falls back to DefaultRegionPolicy.
type RegionPolicy func(jobRegion, providerRegion string) bool

// DefaultRegionPolicy admits any provider when the job has no region
// constraint, otherwise requires an exact match.
func DefaultRegionPolicy(jobRegion, providerRegion string) bool {
	return jobRegion == "" || jobRegion == providerRegion
}

// Matcher holds the provider pool and rotating scan pointer.
type Matcher struct {
	providers    []*Provider
	index        map[string]int // providerID -> position in providers
	rotating     int
	thresholds   map[string]float64 // job kind -> minimum health
	jail         JailChecker
	claims       ClaimRecorder
	regionPolicy RegionPolicy
}

// NewMatcher builds a Matcher over providers, ordered as given; that order
// is the scan order the rotating pointer advances through.
func NewMatcher(providers []*Provider, thresholds map[string]float64, jail JailChecker, claims ClaimRecorder, policy RegionPolicy) *Matcher {
	if policy == nil {
		policy = DefaultRegionPolicy
	}
	idx := make(map[string]int, len(providers))
	for i, p := range providers {
		idx[p.ID] = i
	}
	return &Matcher{providers: providers, index: idx, thresholds: thresholds, jail: jail, claims: claims, regionPolicy: policy}
}

// RunCycle scans jobs in priority order, assigning each to the first
// eligible provider found in up to one full rotating pass, then resets
// every provider's avail counter to MaxConcurrent (cycle boundary reset).
func (m *Matcher) RunCycle(jobs []Job, now int64) []Assignment {
	var assignments []Assignment
	n := len(m.providers)

	for _, job := range jobs {
		if n == 0 {
			continue
		}
		matched := false
		for scanned := 0; scanned < n; scanned++ {
			pos := (m.rotating + scanned) % n
			p := m.providers[pos]
			if !m.eligible(p, job, now) {
				continue
			}
			p.Avail--
			if m.claims != nil {
				if err := m.claims.RecordClaim(job.ID, p.ID); err != nil {
					p.Avail++ // roll back on storage failure
					continue
				}
			}
			assignments = append(assignments, Assignment{JobID: job.ID, ProviderID: p.ID})
			m.rotating = (pos + 1) % n
			matched = true
			break
		}
		_ = matched // if no match found, the job is left for the next cycle
	}

	for _, p := range m.providers {
		p.Avail = p.MaxConcurrent
	}
	return assignments
}

func (m *Matcher) eligible(p *Provider, job Job, now int64) bool {
	if p.Status != StatusActive || p.Avail <= 0 {
		return false
	}
	if p.Health < m.thresholds[job.Kind] {
		return false
	}
	if m.jail != nil && (m.jail.IsJailed(p.ID, now) || m.jail.IsOnCooldown(p.ID, now)) {
		return false
	}
	return m.regionPolicy(job.Region, p.Region)
}
