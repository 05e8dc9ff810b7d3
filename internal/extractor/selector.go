package extractor

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/primowork/WavForce/internal/convert"
)

// sessionPlaceholder in a profile argument is replaced with the current
// session token before each attempt sequence.
const sessionPlaceholder = "{session}"

// SelectorConfig controls the fallback cadence and token lifetime.
type SelectorConfig struct {
	Delay    time.Duration
	TokenTTL time.Duration
}

// Selector yields the ordered extraction profiles for a job. It owns the
// cross-job session token: one token is reused until its TTL lapses, so
// retried conversions present the tool with a stable client identity.
type Selector struct {
	profiles []convert.Profile
	cfg      SelectorConfig
	ids      convert.IDGenerator
	clock    convert.Clock

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewSelector constructs a Selector over the configured profile order.
func NewSelector(profiles []convert.Profile, cfg SelectorConfig, ids convert.IDGenerator, clock convert.Clock) *Selector {
	return &Selector{profiles: profiles, cfg: cfg, ids: ids, clock: clock}
}

// Profiles returns copies of the configured profiles in fallback order with
// the session placeholder substituted.
func (s *Selector) Profiles() []convert.Profile {
	token := s.currentToken()
	out := make([]convert.Profile, len(s.profiles))
	for i, p := range s.profiles {
		cp := convert.Profile{Name: p.Name}
		if len(p.Args) > 0 {
			cp.Args = make([]string, len(p.Args))
			for j, a := range p.Args {
				cp.Args[j] = strings.ReplaceAll(a, sessionPlaceholder, token)
			}
		}
		out[i] = cp
	}
	return out
}

// AttemptDelay is the pause between consecutive attempts of one job.
func (s *Selector) AttemptDelay() time.Duration {
	return s.cfg.Delay
}

func (s *Selector) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if s.token != "" && now.Before(s.tokenExpiry) {
		return s.token
	}
	tok, err := s.ids.NewShortID()
	if err != nil {
		tok = strconv.FormatInt(now.UnixNano(), 16)
	}
	s.token = tok
	s.tokenExpiry = now.Add(s.cfg.TokenTTL)
	return s.token
}
