package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/evault/evault/pkg/logger"
)

// Notifier delivers verification codes to account holders.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

const verificationSubject = "E-Vault - Email Verification"

var verificationTmpl = template.Must(template.New("verification").Parse(`<div style="font-family: Arial, sans-serif; padding: 20px;">
    <h2>Welcome to E-Vault!</h2>
    <p>Your verification code is:</p>
    <h1 style="color: #4CAF50; letter-spacing: 5px; text-align: center;">{{.Code}}</h1>
    <p>This code will expire in {{.Expiry}}.</p>
</div>
`))

// renderVerification returns the HTML body of the verification email.
func renderVerification(code, expiry string) (string, error) {
	var buf bytes.Buffer
	if err := verificationTmpl.Execute(&buf, struct{ Code, Expiry string }{code, expiry}); err != nil {
		return "", fmt.Errorf("render verification email: %w", err)
	}
	return buf.String(), nil
}

// LogNotifier writes codes to the log instead of sending mail. It is used
// when no SMTP host is configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Named("notify")}
}

func (n *LogNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.log.Warnf("mail not configured; verification code for %s is %s", email, code)
	return nil
}
