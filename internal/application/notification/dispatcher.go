package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/care-auth-api/internal/domain"
	"github.com/care-auth-api/internal/infrastructure/smtp"
	"github.com/care-auth-api/internal/infrastructure/sns"
)

// Dispatcher delivers verification codes. Delivery is best-effort and
// detached: a failed send is logged and never reaches the issuing caller.
type Dispatcher interface {
	Dispatch(identifier string, purpose domain.Purpose, code string)
}

type CodeDispatcher struct {
	mailer smtp.Mailer
	sms    sns.SMSSender
	wg     sync.WaitGroup
}

func NewDispatcher(mailer smtp.Mailer, sms sns.SMSSender) *CodeDispatcher {
	return &CodeDispatcher{mailer: mailer, sms: sms}
}

// Dispatch sends the code on a fresh goroutine. Email-shaped identifiers go
// through SMTP, everything else through SMS.
func (d *CodeDispatcher) Dispatch(identifier string, purpose domain.Purpose, code string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		var err error
		if strings.Contains(identifier, "@") {
			err = d.mailer.SendEmail(identifier, subjectFor(purpose), bodyFor(purpose, code))
		} else if d.sms != nil {
			err = d.sms.SendSMS(context.Background(), identifier, bodyFor(purpose, code))
		} else {
			err = fmt.Errorf("no sms channel configured")
		}
		if err != nil {
			slog.Error("verification code dispatch failed", "identifier", identifier, "purpose", purpose, "err", err)
		}
	}()
}

// Wait blocks until all in-flight sends finish. Used on shutdown and in tests.
func (d *CodeDispatcher) Wait() {
	d.wg.Wait()
}

func subjectFor(purpose domain.Purpose) string {
	switch purpose {
	case domain.PurposeAccountVerification:
		return "Verify your account"
	case domain.PurposePasswordReset:
		return "Password reset code"
	case domain.PurposeEmailUpdate:
		return "Confirm your new email address"
	case domain.PurposePhoneUpdate:
		return "Confirm your new phone number"
	}
	return "Your verification code"
}

func bodyFor(purpose domain.Purpose, code string) string {
	return fmt.Sprintf("Your verification code is %s. It expires shortly; if you did not request it, ignore this message.", code)
}
