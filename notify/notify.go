// Package notify delivers out-of-band credentials to account owners.
// The log-backed implementation is for development and tests; real
// deployments wire their mail provider behind authgrid.Notifier.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes deliveries to the structured log. Secrets are
// logged deliberately: this implementation must never reach an
// environment with real users.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.log.WithFields(logrus.Fields{
		"email": email,
		"code":  code,
	}).Info("verification code issued")
	return nil
}

func (n *LogNotifier) SendRecoveryToken(_ context.Context, email, token string) error {
	n.log.WithFields(logrus.Fields{
		"email": email,
		"token": token,
	}).Info("recovery token issued")
	return nil
}
