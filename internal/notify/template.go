package notify

import (
	"html"
	"strings"

	"github.com/shineum/form-mailer/internal/email"
)

const (
	// DefaultSiteURL is used when no site URL is configured.
	DefaultSiteURL = "https://the-ghosts-we-carry.netlify.app"

	// DocumentPath is the percent-encoded path of the manuscript on the site.
	DocumentPath = "/The%20Ghosts%20We%20Carry.pdf"

	senderName = "The Ghosts We Carry"
	subject    = `Your Copy of "The Ghosts We Carry"`

	urlPlaceholder = "{{DOWNLOAD_URL}}"
)

// DownloadURL joins siteURL, or DefaultSiteURL when it is empty, with DocumentPath.
func DownloadURL(siteURL string) string {
	base := strings.TrimRight(siteURL, "/")
	if base == "" {
		base = DefaultSiteURL
	}
	return base + DocumentPath
}

// Compose builds the notification sent from the account user to recipient.
// The download URL is the only part of the message that varies.
func Compose(user, recipient, downloadURL string) *email.Email {
	return &email.Email{
		FromName: senderName,
		From:     user,
		To:       []string{recipient},
		Subject:  subject,
		HtmlBody: strings.ReplaceAll(htmlTemplate, urlPlaceholder, html.EscapeString(downloadURL)),
		TextBody: strings.ReplaceAll(textTemplate, urlPlaceholder, downloadURL),
	}
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; font-family: Georgia, 'Times New Roman', serif; background-color: #1a1a2e; color: #f5f5f0;">
    <div style="max-width: 600px; margin: 0 auto; padding: 40px 20px;">
        <div style="text-align: center; padding-bottom: 30px; border-bottom: 1px solid rgba(201, 185, 154, 0.3);">
            <h1 style="font-size: 28px; font-weight: normal; color: #f5f5f0; margin: 0 0 10px 0; letter-spacing: 0.05em;">
                The Ghosts We Carry
            </h1>
            <p style="font-size: 14px; color: #c9b99a; font-style: italic; margin: 0;">
                From Combat to the Disconnected Generation
            </p>
        </div>

        <div style="padding: 40px 0;">
            <p style="font-size: 16px; line-height: 1.8; color: #f5f5f0; margin: 0 0 20px 0;">
                Thank you for your interest in reading <em>The Ghosts We Carry</em>.
            </p>

            <p style="font-size: 16px; line-height: 1.8; color: #f5f5f0; margin: 0 0 30px 0;">
                Click the button below to download your copy of the manuscript:
            </p>

            <div style="text-align: center; margin: 30px 0;">
                <a href="{{DOWNLOAD_URL}}"
                   style="display: inline-block; padding: 16px 40px; background-color: #d4a853; color: #1a1a2e; text-decoration: none; font-family: 'Helvetica Neue', Arial, sans-serif; font-size: 14px; font-weight: 600; letter-spacing: 0.1em; text-transform: uppercase;">
                    Download PDF
                </a>
            </div>

            <div style="background-color: rgba(45, 42, 36, 0.8); padding: 20px; margin: 30px 0; border-left: 3px solid #d4a853;">
                <p style="font-size: 14px; color: #c9b99a; margin: 0 0 10px 0;">
                    <strong>Draft Status:</strong> Preliminary Final Draft
                </p>
                <p style="font-size: 14px; color: rgba(245, 245, 240, 0.7); margin: 0;">
                    Last updated: January 11, 2026
                </p>
            </div>

            <div style="padding: 30px 0; text-align: center;">
                <p style="font-size: 18px; font-style: italic; color: #f5f5f0; line-height: 1.8; margin: 0;">
                    "At forty-two, he mastered the art of the exit.<br>
                    Now he's learning something harder: <span style="color: #d4a853;">how to stay in the room.</span>"
                </p>
            </div>

            <p style="font-size: 16px; line-height: 1.8; color: #f5f5f0; margin: 30px 0 0 0;">
                Your feedback is invaluable. If you have thoughts on the manuscript&mdash;what works, what doesn't, or how the story affected you&mdash;I'd love to hear from you. You can reach me on <a href="https://www.linkedin.com/in/sbogucki12" style="color: #d4a853;">LinkedIn</a>.
            </p>
        </div>

        <div style="padding-top: 30px; border-top: 1px solid rgba(201, 185, 154, 0.15); text-align: center;">
            <p style="font-size: 12px; color: rgba(201, 185, 154, 0.6); margin: 0 0 15px 0;">
                You're receiving this because you requested a copy of the manuscript.
            </p>

            <div style="padding: 15px; background-color: rgba(15, 15, 26, 0.5); margin: 20px 0;">
                <p style="font-size: 11px; color: #c9b99a; margin: 0 0 5px 0;">
                    <strong>If you're struggling:</strong>
                </p>
                <p style="font-size: 11px; color: rgba(201, 185, 154, 0.6); margin: 0;">
                    Veterans Crisis Line: 988 (press 1) &middot; Crisis Text Line: Text HOME to 741741
                </p>
            </div>

            <p style="font-size: 11px; color: rgba(201, 185, 154, 0.4); margin: 20px 0 0 0;">
                &copy; 2026 Steve Bogucki
            </p>
        </div>
    </div>
</body>
</html>
`

const textTemplate = `The Ghosts We Carry
From Combat to the Disconnected Generation

Thank you for your interest in reading "The Ghosts We Carry."

Download your copy here:
{{DOWNLOAD_URL}}

Draft Status: Preliminary Final Draft
Last updated: January 11, 2026

---

"At forty-two, he mastered the art of the exit.
Now he's learning something harder: how to stay in the room."

---

Your feedback is invaluable. If you have thoughts on the manuscript, reach me on LinkedIn:
https://www.linkedin.com/in/sbogucki12

---

If you're struggling:
Veterans Crisis Line: 988 (press 1)
Crisis Text Line: Text HOME to 741741

© 2026 Steve Bogucki
`
