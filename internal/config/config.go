package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries the collaborator endpoints and the operational knobs of the
// payment orchestrator. Collaborator handles are constructor-injected from
// these values; nothing reads ambient state after startup.
type Config struct {
	OTPServiceURL      string
	CustomerServiceURL string
	TuitionServiceURL  string
	MailServiceURL     string

	// CollaboratorTimeout bounds every single external call: OTP validation,
	// balance debit/credit, tuition fetch/update, notification.
	CollaboratorTimeout time.Duration

	OTPMaxPerCustomer  int
	OTPRateLimitWindow time.Duration
}

// Load materialises the payment configuration from viper (env + .env file).
func Load() *Config {
	viper.SetDefault("services.otp_url", "http://otp-service:8085")
	viper.SetDefault("services.customer_url", "http://customer-management-service:8082")
	viper.SetDefault("services.tuition_url", "http://tuition-service:8084")
	viper.SetDefault("services.mail_url", "http://mail-service:8086")
	viper.SetDefault("services.call_timeout", 5*time.Second)
	viper.SetDefault("otp.max_per_customer", 5)
	viper.SetDefault("otp.rate_limit_window", time.Hour)

	return &Config{
		OTPServiceURL:       viper.GetString("services.otp_url"),
		CustomerServiceURL:  viper.GetString("services.customer_url"),
		TuitionServiceURL:   viper.GetString("services.tuition_url"),
		MailServiceURL:      viper.GetString("services.mail_url"),
		CollaboratorTimeout: viper.GetDuration("services.call_timeout"),
		OTPMaxPerCustomer:   viper.GetInt("otp.max_per_customer"),
		OTPRateLimitWindow:  viper.GetDuration("otp.rate_limit_window"),
	}
}
