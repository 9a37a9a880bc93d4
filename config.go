package core

import (
	"fmt"
	"regexp"
	"time"
)

// MapCaptchaConfig configures the CAPTCHA check and generator.
type MapCaptchaConfig struct {
	Enabled        bool          `json:"enabled"`
	Alphabet       string        `json:"alphabet"`
	CodeLength     int           `json:"code_length"`
	Precompute     int           `json:"precompute"`
	MaxTries       int           `json:"max_tries"`
	MaxDuration    time.Duration `json:"max_duration"`
	BackgroundPath string        `json:"background_path"`
}

// GravityConfig configures the Gravity check.
type GravityConfig struct {
	Enabled          bool `json:"enabled"`
	MaxMovementTicks int  `json:"max_movement_ticks"`
}

// Configuration is the closed set of options recognised by the core, per
// spec.md §6. Process bootstrap, file formats, and localization are the
// protocol layer's concern; this struct is the in-memory surface it
// decodes into before calling Enable.
type Configuration struct {
	Enabled bool `json:"enabled"`

	MaxOnlinePerIp int `json:"max_online_per_ip"`

	ValidNameRegex   string `json:"valid_name_regex"`
	ValidLocaleRegex string `json:"valid_locale_regex"`
	ValidBrandRegex  string `json:"valid_brand_regex"`

	ForceRejoin     bool          `json:"force_rejoin"`
	RejoinValidTime time.Duration `json:"rejoin_valid_time"`
	RejoinDelay     time.Duration `json:"rejoin_delay"`

	MinPlayersForAttack int           `json:"min_players_for_attack"`
	MinAttackDuration    time.Duration `json:"min_attack_duration"`

	QueueMaxPolls int `json:"queue_max_polls"`

	VerificationDeadline time.Duration `json:"verification_deadline"`
	RememberTime         time.Duration `json:"remember_time"`

	BlacklistThreshold int           `json:"blacklist_threshold"`
	BlacklistTime      time.Duration `json:"blacklist_time"`

	MapCaptcha MapCaptchaConfig `json:"map_captcha"`
	Gravity    GravityConfig    `json:"gravity"`

	CollisionEnabled   bool `json:"collision_enabled"`
	VehicleEnabled     bool `json:"vehicle_enabled"`
	ClientBrandEnabled bool `json:"client_brand_enabled"`

	compiledName   *regexp.Regexp
	compiledLocale *regexp.Regexp
	compiledBrand  *regexp.Regexp
}

// Default returns a Configuration with the teacher-style sane defaults
// for every field a deployer is likely to leave unset.
func Default() Configuration {
	return Configuration{
		Enabled:              true,
		MaxOnlinePerIp:       3,
		ValidNameRegex:       `^[A-Za-z0-9_]{3,16}$`,
		ValidLocaleRegex:     `^[a-z]{2}_[a-z]{2}$`,
		ValidBrandRegex:      `^[ -~]{1,64}$`,
		ForceRejoin:          false,
		RejoinValidTime:      30 * time.Second,
		RejoinDelay:          3 * time.Second,
		MinPlayersForAttack:  100,
		MinAttackDuration:    30 * time.Second,
		QueueMaxPolls:        10,
		VerificationDeadline: 20 * time.Second,
		RememberTime:         5 * time.Minute,
		BlacklistThreshold:   3,
		BlacklistTime:        10 * time.Minute,
		MapCaptcha: MapCaptchaConfig{
			Enabled:     true,
			Alphabet:    "ABCDEFGHJKLMNPQRSTUVWXYZ23456789",
			CodeLength:  5,
			Precompute:  32,
			MaxTries:    3,
			MaxDuration: 30 * time.Second,
		},
		Gravity: GravityConfig{
			Enabled:          true,
			MaxMovementTicks: 20,
		},
		CollisionEnabled:   true,
		VehicleEnabled:     false,
		ClientBrandEnabled: true,
	}
}

// compile validates and compiles the regex fields. Called once by
// Controller.Enable; Decide never compiles a regex on the hot path.
func (c *Configuration) compile() error {
	var err error
	c.compiledName, err = regexp.Compile(c.ValidNameRegex)
	if err != nil {
		return fmt.Errorf("valid_name_regex: %w", err)
	}
	if c.ValidLocaleRegex != "" {
		c.compiledLocale, err = regexp.Compile(c.ValidLocaleRegex)
		if err != nil {
			return fmt.Errorf("valid_locale_regex: %w", err)
		}
	}
	c.compiledBrand, err = regexp.Compile(c.ValidBrandRegex)
	if err != nil {
		return fmt.Errorf("valid_brand_regex: %w", err)
	}
	return nil
}
