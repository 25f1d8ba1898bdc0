package mail

import "fmt"

// Verification returns the subject and body for an email-verification or
// invite-setup message. The same link serves both flows; the token decides
// which account it completes.
func Verification(link string) (subject, body string) {
	return "Verify your email address", fmt.Sprintf(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Welcome to schoold</h2>
  <p>Please verify your email address by clicking the link below:</p>
  <p><a href="%s">Verify email</a></p>
  <p>Or copy this link into your browser:</p>
  <p>%s</p>
  <p style="color: #666; font-size: 12px;">This link expires in 24 hours.</p>
</div>`, link, link)
}

// OTP returns the password-reset code message.
func OTP(code string) (subject, body string) {
	return "Your password reset code", fmt.Sprintf(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Password reset requested</h2>
  <p>Your one-time code is:</p>
  <p style="font-size: 24px; letter-spacing: 4px;"><strong>%s</strong></p>
  <p style="color: #666; font-size: 12px;">This code expires in 10 minutes. If you did not request it, ignore this email.</p>
</div>`, code)
}

// ResetConfirmation returns the post-reset notice.
func ResetConfirmation() (subject, body string) {
	return "Your password was changed", `
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Password changed</h2>
  <p>Your password was just reset. If this was not you, contact your administrator immediately.</p>
</div>`
}
