// Package filter classifies job related emails with keyword, sender domain
// and regular expression rules.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/feed"
	"github.com/nhle/mailbox/internal/model"
)

// RuleType identifies how a rule is evaluated.
type RuleType string

const (
	RuleKeyword RuleType = "keyword"
	RuleDomain  RuleType = "domain"
	RuleRegex   RuleType = "regex"
)

// Rule is a single classification rule.
type Rule struct {
	Type        RuleType
	Pattern     string
	Confidence  float64
	Description string

	re *regexp.Regexp
}

// Match is a rule that fired for a message.
type Match struct {
	Type       RuleType
	Pattern    string
	Confidence float64
}

// Classifier decides whether a message is job related.
type Classifier struct {
	rules         []Rule
	minConfidence float64
	logger        zerolog.Logger
}

// New compiles the rules of cfg. Patterns that fail to compile are skipped
// with a warning.
func New(cfg model.FilterConfig, logger zerolog.Logger) *Classifier {
	logger = logger.With().Str("component", "filter").Logger()

	c := &Classifier{
		minConfidence: cfg.MinConfidence,
		logger:        logger,
	}
	for _, kw := range cfg.Keywords {
		c.rules = append(c.rules, Rule{
			Type:        RuleKeyword,
			Pattern:     strings.ToLower(kw),
			Confidence:  cfg.KeywordConfidence,
			Description: fmt.Sprintf("subject contains keyword: %s", kw),
		})
	}
	for _, d := range cfg.Domains {
		c.rules = append(c.rules, Rule{
			Type:        RuleDomain,
			Pattern:     strings.ToLower(d),
			Confidence:  cfg.DomainConfidence,
			Description: fmt.Sprintf("from domain: %s", d),
		})
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			logger.Warn().Err(err).Str("pattern", p).Msg("skipping invalid pattern")
			continue
		}
		c.rules = append(c.rules, Rule{
			Type:        RuleRegex,
			Pattern:     p,
			Confidence:  cfg.RegexConfidence,
			Description: fmt.Sprintf("regex match: %s", p),
			re:          re,
		})
	}
	return c
}

// Rules returns the compiled rules.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify returns every rule that matches m and whether the message counts
// as job related: at least one match whose confidence reaches the minimum.
func (c *Classifier) Classify(m model.Message) (bool, []Match) {
	subject := strings.ToLower(m.Subject)
	sender := strings.ToLower(m.SenderEmail)
	name := strings.ToLower(m.Sender)
	text := subject + " " + sender + " " + name

	var (
		matches []Match
		best    float64
	)
	for _, r := range c.rules {
		var hit bool
		switch r.Type {
		case RuleKeyword:
			hit = strings.Contains(subject, r.Pattern)
		case RuleDomain:
			hit = domainMatches(sender, r.Pattern)
		case RuleRegex:
			hit = r.re.MatchString(text)
		}
		if !hit {
			continue
		}
		matches = append(matches, Match{Type: r.Type, Pattern: r.Pattern, Confidence: r.Confidence})
		best = max(best, r.Confidence)
	}

	job := len(matches) > 0 && best >= c.minConfidence
	if job {
		c.logger.Debug().
			Str("id", m.ID).
			Int("matches", len(matches)).
			Float64("confidence", best).
			Msg("classified as job email")
	}
	return job, matches
}

// IsJob reports whether m is job related.
func (c *Classifier) IsJob(m model.Message) bool {
	job, _ := c.Classify(m)
	return job
}

// IsJobItem reports whether any message of a feed item is job related.
func (c *Classifier) IsJobItem(it feed.Item) bool {
	for _, m := range it.Messages() {
		if c.IsJob(m) {
			return true
		}
	}
	return false
}

// domainMatches reports whether addr belongs to domain or one of its
// subdomains.
func domainMatches(addr, domain string) bool {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	host := strings.TrimSuffix(addr[at+1:], ">")
	return host == domain || strings.HasSuffix(host, "."+domain)
}
