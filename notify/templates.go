package notify

import (
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/MrEthical07/passgate"
	"github.com/MrEthical07/passgate/credential"
)

const expiryLayout = "02 Jan 2006 15:04 MST"

// Message is a rendered notice.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

var codeSubjects = map[credential.Purpose]string{
	credential.PurposeLogin:          "Your access code",
	credential.PurposePasswordReset:  "Your password reset code",
	credential.PurposePasswordChange: "Confirm your password change",
	credential.PurposeCriticalAction: "Confirm a sensitive action",
}

// Render builds the message for n with times shown in loc (UTC when nil).
func Render(n passgate.Notice, loc *time.Location) (Message, error) {
	if loc == nil {
		loc = time.UTC
	}
	greeting := "Hello"
	if n.Name != "" {
		greeting = "Hello " + n.Name
	}

	switch n.Kind {
	case passgate.NoticeCode:
		subject, ok := codeSubjects[n.Purpose]
		if !ok {
			return Message{}, fmt.Errorf("notify: no template for purpose %q", n.Purpose)
		}
		if n.Code == "" {
			return Message{}, errors.New("notify: code notice without code")
		}
		expires := n.ExpiresAt.In(loc).Format(expiryLayout)
		return Message{
			Subject: subject,
			Text:    fmt.Sprintf("%s,\n\nYour verification code is: %s\nIt expires at %s.\n\nIf you did not request it, you can ignore this message.\n", greeting, n.Code, expires),
			HTML: fmt.Sprintf(`<p>%s,</p>
<p>Your verification code is: <strong>%s</strong></p>
<p>It expires at %s.</p>
<p>If you did not request it, you can ignore this message.</p>`, html.EscapeString(greeting), html.EscapeString(n.Code), expires),
		}, nil

	case passgate.NoticeLockout:
		until := n.LockedUntil.In(loc).Format(expiryLayout)
		return Message{
			Subject: "Your password has been temporarily locked",
			Text:    fmt.Sprintf("%s,\n\nWe detected %d incorrect password attempt(s). Sign-in is blocked until %s.\n", greeting, n.Attempts, until),
			HTML: fmt.Sprintf(`<p>%s,</p>
<p>We detected %d incorrect password attempt(s). Sign-in is blocked until <strong>%s</strong>.</p>`, html.EscapeString(greeting), n.Attempts, until),
		}, nil

	default:
		return Message{}, fmt.Errorf("notify: unknown notice kind %q", n.Kind)
	}
}
