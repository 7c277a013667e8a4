package subscription

// Config carries the billing feature flags the core reads. All flags are
// external, read-only inputs loaded from the environment.
type Config struct {
	// ProrationEnabled controls whether provider-side quantity and plan
	// changes are billed pro-rata for the current cycle.
	ProrationEnabled bool `env:"BILLING_PRORATION_ENABLED" envDefault:"true"`

	// TrialWithoutPayment enables locally-managed trial subscriptions that
	// never touch the payment provider.
	TrialWithoutPayment bool `env:"BILLING_TRIAL_WITHOUT_PAYMENT" envDefault:"false"`

	// TrialRequiresPhoneVerification gates payment-free trials behind SMS
	// phone verification.
	TrialRequiresPhoneVerification bool `env:"BILLING_TRIAL_REQUIRES_PHONE_VERIFICATION" envDefault:"false"`

	// TrialLimitEnabled caps the number of trials a user may consume
	// across their lifetime.
	TrialLimitEnabled bool `env:"BILLING_TRIAL_LIMIT_ENABLED" envDefault:"true"`

	// MaxTrialCount is the lifetime trial cap per user when limiting is on.
	MaxTrialCount int `env:"BILLING_MAX_TRIAL_COUNT" envDefault:"1"`
}
