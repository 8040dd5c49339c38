package strategy

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/logging"
)

// Registry holds every registered Strategy and resolves the right one for
// a page. Grounded on registry.py's ATSStrategyRegistry, reshaped from
// Python classmethods-over-a-class-dict into an instance the caller owns
// (no package-level mutable state, per idiomatic Go construction).
type Registry struct {
	strategies map[string]Strategy
	log        *zap.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		log:        logging.L().Named("strategy"),
	}
}

// Register adds a strategy under its own Name(). A later call with the
// same name replaces the earlier one.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
	r.log.Info("registered ATS strategy", zap.String("name", s.Name()))
}

// Get returns the strategy registered under name, if any.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns every registered strategy name.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// Detect auto-selects a strategy for pageHTML/pageURL: URL-pattern
// matching first (cheap), then each strategy's own Detect, finally the
// "generic" fallback if registered. Matches registry.py's detect_ats
// ordering exactly.
func (r *Registry) Detect(ctx context.Context, pageHTML, pageURL string) (Strategy, bool) {
	for name, s := range r.strategies {
		for _, pattern := range s.URLPatterns() {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				r.log.Warn("invalid url pattern", zap.String("strategy", name), zap.Error(err))
				continue
			}
			if re.MatchString(pageURL) {
				r.log.Info("detected ATS by URL pattern", zap.String("strategy", name))
				return s, true
			}
		}
	}

	for name, s := range r.strategies {
		if name == "generic" {
			continue
		}
		if s.Detect(ctx, pageHTML, pageURL) {
			r.log.Info("detected ATS by content", zap.String("strategy", name))
			return s, true
		}
	}

	if generic, ok := r.strategies["generic"]; ok {
		r.log.Info("no specific ATS matched, using generic strategy")
		return generic, true
	}

	r.log.Warn("no ATS strategy matched")
	return nil, false
}
