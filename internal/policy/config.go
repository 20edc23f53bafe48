package policy

// Mode defines the policy engine operating mode
type Mode string

const (
	// ModeOff disables policy evaluation entirely
	ModeOff Mode = "off"
	// ModeDryRun evaluates policies but doesn't enforce them (log only)
	ModeDryRun Mode = "dry-run"
	// ModeEnforce evaluates and enforces policies
	ModeEnforce Mode = "enforce"
)

// Config holds policy engine configuration
type Config struct {
	// Enabled controls whether the policy engine is active
	Enabled bool `mapstructure:"enabled"`

	// Mode controls policy enforcement behavior
	Mode Mode `mapstructure:"mode"`

	// Path to a directory of .rego files. Empty uses the built-in publish
	// policy.
	Path string `mapstructure:"path"`

	// FailClosed determines behavior when policies can't be loaded
	// true: deny all requests if policies fail to load
	// false: allow all requests if policies fail to load (fail-open)
	FailClosed bool `mapstructure:"fail_closed"`

	// Environment context for policy evaluation
	Environment string `mapstructure:"environment"`
}

// Normalize applies defaults and disables the engine for mode off.
func (c *Config) Normalize() {
	switch c.Mode {
	case ModeOff, ModeDryRun, ModeEnforce:
	case "":
		if c.Enabled {
			c.Mode = ModeEnforce
		} else {
			c.Mode = ModeOff
		}
	default:
		// Invalid mode, default to off
		c.Mode = ModeOff
	}
	if c.Mode == ModeOff {
		c.Enabled = false
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
}
