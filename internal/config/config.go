package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fedihype/fedihype/pkg/mastodon"
)

// Config is the root configuration.
type Config struct {
	Bot           BotConfig           `yaml:"bot"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	State         StateConfig         `yaml:"state"`
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Instances     []InstanceConfig    `yaml:"instances"`
	LocalTimeline LocalTimelineConfig `yaml:"local_timeline"`
	Feeds         []FeedConfig        `yaml:"feeds"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Admission     AdmissionConfig     `yaml:"admission"`
	Profile       ProfileConfig       `yaml:"profile"`
}

// BotConfig identifies the bot account doing the boosting.
type BotConfig struct {
	Server      string `yaml:"server"`
	AccessToken string `yaml:"access_token"`
	// FederateMissing enables the search-resolve fallback for statuses the
	// bot instance has not federated yet.
	FederateMissing bool `yaml:"federate_missing_statuses"`
}

// ScheduleConfig configures the boost cycle interval.
type ScheduleConfig struct {
	Interval string `yaml:"interval"`
}

// ParseInterval returns the cycle interval as time.Duration.
func (s ScheduleConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return time.Hour
	}
	return d
}

// StateConfig configures history persistence.
type StateConfig struct {
	Path          string `yaml:"path"`
	SeenCacheSize int    `yaml:"seen_cache_size"`
}

// ServerConfig configures the HTTP status server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	// DebugDecisions enables per-candidate decision tracing.
	DebugDecisions bool `yaml:"debug_decisions"`
}

// InstanceConfig is one subscribed remote instance.
type InstanceConfig struct {
	Name       string `yaml:"name"`
	FetchLimit int    `yaml:"fetch_limit"`
	BoostLimit int    `yaml:"boost_limit"`
}

// LocalTimelineConfig configures the bot instance's own timeline as an origin.
type LocalTimelineConfig struct {
	Enabled       bool `yaml:"enabled"`
	FetchLimit    int  `yaml:"fetch_limit"`
	BoostLimit    int  `yaml:"boost_limit"`
	MinEngagement int  `yaml:"min_engagement"`
}

// FeedConfig is an optional RSS/Atom feed origin (e.g. a tag feed).
type FeedConfig struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	BoostLimit int    `yaml:"boost_limit"`
}

// ScoringConfig drives the raw-score computation. It is loaded once per
// process and immutable during a cycle.
type ScoringConfig struct {
	HashtagScores     map[string]float64 `yaml:"hashtag_scores"`
	RelatedHashtags   RelatedHashtags    `yaml:"related_hashtags"`
	PreferMedia       float64            `yaml:"prefer_media"`
	AgeDecay          AgeDecayConfig     `yaml:"age_decay"`
	Spam              SpamConfig         `yaml:"spam"`
	MinScoreThreshold float64            `yaml:"min_score_threshold"`
}

// AgeDecayConfig configures half-life decay of the whole score.
type AgeDecayConfig struct {
	Enabled       bool    `yaml:"enabled"`
	HalfLifeHours float64 `yaml:"half_life_hours"`
}

// SpamConfig configures emoji and link penalties.
type SpamConfig struct {
	EmojiThreshold int     `yaml:"emoji_threshold"`
	EmojiPenalty   float64 `yaml:"emoji_penalty"`
	LinkPenalty    float64 `yaml:"link_penalty"`
}

// RelatedTerm is one term that earns a fraction of a main hashtag's weight.
type RelatedTerm struct {
	Term       string
	Multiplier float64
}

// RelatedHashtag holds the related terms of one main hashtag, in the order
// they were declared in the config file.
type RelatedHashtag struct {
	Hashtag string
	Terms   []RelatedTerm
}

// RelatedHashtags preserves YAML declaration order so that the first-match
// scan in the scorer stays deterministic.
type RelatedHashtags []RelatedHashtag

func (r *RelatedHashtags) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("related_hashtags: expected mapping, got %s", node.Tag)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.MappingNode {
			return fmt.Errorf("related_hashtags.%s: expected mapping of term to multiplier", key.Value)
		}
		rh := RelatedHashtag{Hashtag: strings.ToLower(key.Value)}
		for j := 0; j < len(val.Content); j += 2 {
			var mult float64
			if err := val.Content[j+1].Decode(&mult); err != nil {
				return fmt.Errorf("related_hashtags.%s.%s: %w", key.Value, val.Content[j].Value, err)
			}
			rh.Terms = append(rh.Terms, RelatedTerm{
				Term:       strings.ToLower(val.Content[j].Value),
				Multiplier: mult,
			})
		}
		*r = append(*r, rh)
	}
	return nil
}

// AdmissionConfig drives filtering, diversity rules, and quota caps.
type AdmissionConfig struct {
	DailyCap                  int      `yaml:"daily_cap"`
	HourlyCap                 int      `yaml:"hourly_cap"`
	MaxBoostsPerRun           int      `yaml:"max_boosts_per_run"`
	AuthorDiversity           bool     `yaml:"author_diversity"`
	HashtagDiversity          bool     `yaml:"hashtag_diversity"`
	MaxBoostsPerHashtagPerRun int      `yaml:"max_boosts_per_hashtag_per_run"`
	RequireMedia              bool     `yaml:"require_media"`
	SkipSensitiveWithoutCW    bool     `yaml:"skip_sensitive_without_cw"`
	MinReblogs                int      `yaml:"min_reblogs"`
	MinFavourites             int      `yaml:"min_favourites"`
	MinReplies                int      `yaml:"min_replies"`
	Languages                 []string `yaml:"languages"`
	FilteredServers           []string `yaml:"filtered_servers"`
}

// ProfileConfig configures the bot account profile update.
type ProfileConfig struct {
	Prefix string                  `yaml:"prefix"`
	Fields []mastodon.ProfileField `yaml:"fields"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{Interval: "1h"},
		State: StateConfig{
			Path:          "./fedihype.db",
			SeenCacheSize: 6000,
		},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "text"},
		LocalTimeline: LocalTimelineConfig{
			Enabled:       true,
			FetchLimit:    20,
			BoostLimit:    2,
			MinEngagement: 1,
		},
		Scoring: ScoringConfig{
			AgeDecay: AgeDecayConfig{HalfLifeHours: 24},
			Spam:     SpamConfig{EmojiThreshold: 2},
		},
		Admission: AdmissionConfig{
			DailyCap:                  48,
			HourlyCap:                 1,
			MaxBoostsPerRun:           5,
			AuthorDiversity:           true,
			HashtagDiversity:          false,
			MaxBoostsPerHashtagPerRun: 1,
			RequireMedia:              true,
			SkipSensitiveWithoutCW:    true,
		},
	}
}

// Load reads configuration from a YAML file, applies env var overrides, and
// validates the result. Validation failures are fatal at startup: a malformed
// weight or cap must never be silently defaulted mid-run.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// normalize lowercases the keys compared case-insensitively at runtime.
func (c *Config) normalize() {
	if len(c.Scoring.HashtagScores) > 0 {
		scores := make(map[string]float64, len(c.Scoring.HashtagScores))
		for tag, weight := range c.Scoring.HashtagScores {
			scores[strings.ToLower(tag)] = weight
		}
		c.Scoring.HashtagScores = scores
	}
	for i, lang := range c.Admission.Languages {
		c.Admission.Languages[i] = strings.ToLower(lang)
	}
}

// Validate rejects malformed configuration.
func (c *Config) Validate() error {
	if c.State.SeenCacheSize <= 0 {
		return fmt.Errorf("state.seen_cache_size must be positive, got %d", c.State.SeenCacheSize)
	}
	if c.Admission.DailyCap <= 0 {
		return fmt.Errorf("admission.daily_cap must be positive, got %d", c.Admission.DailyCap)
	}
	if c.Admission.HourlyCap <= 0 {
		return fmt.Errorf("admission.hourly_cap must be positive, got %d", c.Admission.HourlyCap)
	}
	if c.Admission.MaxBoostsPerRun <= 0 {
		return fmt.Errorf("admission.max_boosts_per_run must be positive, got %d", c.Admission.MaxBoostsPerRun)
	}
	if c.Admission.HashtagDiversity && c.Admission.MaxBoostsPerHashtagPerRun <= 0 {
		return fmt.Errorf("admission.max_boosts_per_hashtag_per_run must be positive, got %d",
			c.Admission.MaxBoostsPerHashtagPerRun)
	}
	if c.Admission.MinReblogs < 0 || c.Admission.MinFavourites < 0 || c.Admission.MinReplies < 0 {
		return fmt.Errorf("admission minimum engagement counts must not be negative")
	}
	if c.Scoring.AgeDecay.Enabled && c.Scoring.AgeDecay.HalfLifeHours <= 0 {
		return fmt.Errorf("scoring.age_decay.half_life_hours must be positive, got %g",
			c.Scoring.AgeDecay.HalfLifeHours)
	}
	if c.Scoring.Spam.EmojiThreshold < 0 {
		return fmt.Errorf("scoring.spam.emoji_threshold must not be negative, got %d",
			c.Scoring.Spam.EmojiThreshold)
	}
	if c.Scoring.Spam.EmojiPenalty < 0 || c.Scoring.Spam.LinkPenalty < 0 {
		return fmt.Errorf("scoring.spam penalties must not be negative")
	}
	for _, rh := range c.Scoring.RelatedHashtags {
		for _, term := range rh.Terms {
			if term.Multiplier <= 0 {
				return fmt.Errorf("scoring.related_hashtags.%s.%s: multiplier must be positive, got %g",
					rh.Hashtag, term.Term, term.Multiplier)
			}
		}
	}
	for _, inst := range c.Instances {
		if inst.Name == "" {
			return fmt.Errorf("instances: name must not be empty")
		}
	}
	for _, feed := range c.Feeds {
		if feed.URL == "" {
			return fmt.Errorf("feeds.%s: url must not be empty", feed.Name)
		}
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEDIHYPE_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}
	if v := os.Getenv("FEDIHYPE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MASTODON_SERVER"); v != "" {
		cfg.Bot.Server = v
	}
	if v := os.Getenv("MASTODON_ACCESS_TOKEN"); v != "" {
		cfg.Bot.AccessToken = v
	}
}
