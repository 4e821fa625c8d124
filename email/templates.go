package email

import (
	"fmt"
	"strings"
)

func formatMagicLinkBody(link string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }\n")
	b.WriteString(".header { border-bottom: 2px solid #2c82c9; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".content { background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 15px 0; }\n")
	b.WriteString(".button { display: inline-block; background: #2c82c9; color: #fff; padding: 12px 24px; border-radius: 6px; text-decoration: none; font-weight: 600; }\n")
	b.WriteString(".footer { margin-top: 20px; padding-top: 10px; border-top: 2px solid #ecf0f1; color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("a { color: #2c82c9; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n<h2>Sign in to TV Alert</h2>\n</div>\n")

	b.WriteString("<div class=\"content\">\n")
	b.WriteString("<p>Click the link below to verify your email address and manage your show subscriptions.</p>\n")
	b.WriteString(fmt.Sprintf("<p><a href=\"%s\" class=\"button\">Sign in to TV Alert</a></p>\n", escapeHTML(link)))
	b.WriteString("</div>\n")

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString("<p>This link expires in 24 hours. If you didn't request it, you can safely ignore this email.</p>\n")
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

func formatDailyNotificationBody(showNames []string, manageLink, unsubscribeLink string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }\n")
	b.WriteString(".header { border-bottom: 2px solid #2c82c9; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".show { background: #f8f9fa; padding: 12px 20px; border-radius: 8px; margin: 10px 0; font-weight: 600; }\n")
	b.WriteString(".footer { margin-top: 20px; padding-top: 10px; border-top: 2px solid #ecf0f1; color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("a { color: #2c82c9; text-decoration: none; }\n")
	b.WriteString("a:hover { text-decoration: underline; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n")
	if len(showNames) == 1 {
		b.WriteString("<h2>A show you follow premieres today</h2>\n")
	} else {
		b.WriteString(fmt.Sprintf("<h2>%d shows you follow premiere today</h2>\n", len(showNames)))
	}
	b.WriteString("</div>\n")

	for _, name := range showNames {
		b.WriteString(fmt.Sprintf("<div class=\"show\">%s</div>\n", escapeHTML(name)))
	}

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString(fmt.Sprintf("<a href=\"%s\">Manage Subscriptions</a>\n", escapeHTML(manageLink)))
	b.WriteString(" &bull; \n")
	b.WriteString(fmt.Sprintf("<a href=\"%s\">Unsubscribe from all emails</a>\n", escapeHTML(unsubscribeLink)))
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
