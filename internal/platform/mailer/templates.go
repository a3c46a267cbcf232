package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

const (
	SubjectVerification  = "Nalanda Library: verification code"
	SubjectPasswordReset = "Nalanda Library: password recovery"
)

var (
	verificationTmpl = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Verify your email</h2>
  <p>Use the code below to finish creating your Nalanda Library account.</p>
  <p style="font-size: 24px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
  <p>The code expires in {{.Minutes}} minutes. If you did not sign up, ignore this mail.</p>
</body>
</html>`))

	resetTmpl = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Reset your password</h2>
  <p>Open the link below to choose a new password.</p>
  <p><a href="{{.URL}}">{{.URL}}</a></p>
  <p>The link expires in {{.Minutes}} minutes. If you did not ask for a reset, ignore this mail.</p>
</body>
</html>`))
)

func VerificationEmail(code, minutes int) (string, error) {
	return render(verificationTmpl, struct {
		Code    string
		Minutes int
	}{fmt.Sprintf("%05d", code), minutes})
}

func PasswordResetEmail(url string, minutes int) (string, error) {
	return render(resetTmpl, struct {
		URL     string
		Minutes int
	}{url, minutes})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
