package provider

import (
	"context"
	"fmt"

	"github.com/shineum/form-mailer/internal/config"
	"github.com/shineum/form-mailer/internal/provider/ses"
	smtpprovider "github.com/shineum/form-mailer/internal/provider/smtp"
	"github.com/shineum/form-mailer/internal/provider/stdout"
)

// New builds the delivery backend selected by cfg.Provider. A fresh
// Provider is meant to be created for every delivery.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderSMTP, "":
		return smtpprovider.New(smtpprovider.Config{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Secure:   cfg.Email.Secure,
			Username: cfg.Email.User,
			Password: cfg.Email.Pass,
			Timeout:  cfg.DeliveryTimeout(),
		}), nil

	case config.ProviderSES:
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Endpoint:        cfg.SES.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case config.ProviderStdout:
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
