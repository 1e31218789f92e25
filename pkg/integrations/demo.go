package integrations

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

var serviceTitles = map[string]string{
	"slack":    "Slack",
	"jira":     "Jira",
	"gmail":    "Gmail",
	"calendar": "Google Calendar",
	"notion":   "Notion",
	"docs":     "Google Docs",
	"sheets":   "Google Sheets",
	"drive":    "Google Drive",
	"meet":     "Google Meet",
	"slides":   "Google Slides",
	"forms":    "Google Forms",
	"github":   "GitHub",
	"linear":   "Linear",
	"bugasura": "Bugasura",
}

var oauthServices = map[string]bool{
	"gmail": true, "calendar": true, "docs": true, "sheets": true,
	"drive": true, "meet": true, "slides": true, "forms": true,
}

// DemoBackend answers every tool call with a deterministic message instead
// of calling the external API. Google services still go through the OAuth
// expiry contract.
type DemoBackend struct {
	Tokens TokenSource
}

// Invoke implements Backend
func (b *DemoBackend) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if msg, ok := b.checkAuth(ctx, &inv); !ok {
		return msg, nil
	}

	p := params(inv.Params)
	switch inv.Tool {
	case "slack_send_message":
		msg := p.get("message")
		if msg == "" {
			msg = p.get("text")
		}
		return fmt.Sprintf("✅ Message sent to #%s\nMessage: %s", channel(p.get("channel")), msg), nil
	case "slack_post_update":
		return fmt.Sprintf("✅ Update posted to #%s\nTitle: %s", channel(p.get("channel")), p.get("title")), nil
	case "slack_list_channels":
		return "📋 Available Slack channels:\n- #general\n- #dev-updates\n- #random", nil

	case "jira_create_issue":
		key := fmt.Sprintf("%s-%d", p.get("project_key"), 100+shortHash(p.get("summary"))%900)
		return fmt.Sprintf("✅ Created Jira issue: %s\nSummary: %s\nType: %s", key, p.get("summary"), p.get("issue_type")), nil
	case "jira_search_issues":
		return fmt.Sprintf("Found 0 issues matching %q", p.get("query")), nil
	case "jira_get_my_issues":
		return "You have no open issues assigned to you.", nil
	case "jira_add_comment":
		return fmt.Sprintf("✅ Comment added to %s", p.get("issue_key")), nil

	case "gmail_send_email":
		return fmt.Sprintf("✅ Email sent successfully!\nTo: %s\nSubject: %s", p.get("to"), p.get("subject")), nil
	case "gmail_search_emails":
		return fmt.Sprintf("No emails found matching: %s", p.get("query")), nil
	case "gmail_get_unread":
		return "📭 No unread emails!", nil
	case "gmail_create_draft":
		return fmt.Sprintf("✅ Draft created!\nTo: %s\nSubject: %s", p.get("to"), p.get("subject")), nil
	case "gmail_read_latest_emails":
		return fmt.Sprintf("📬 Latest %s emails: inbox is empty.", p.get("count")), nil

	case "calendar_create_event":
		return fmt.Sprintf("✅ Event created!\nTitle: %s\nStart: %s\nMeet link: %s",
			p.get("summary"), p.get("start_time"), meetLink(p.get("summary")+p.get("start_time"))), nil
	case "calendar_view_upcoming":
		return fmt.Sprintf("📅 No events scheduled for the next %s days.", p.get("days")), nil
	case "calendar_today":
		return "📅 No events scheduled for today. Your calendar is clear!", nil
	case "calendar_update_event":
		return fmt.Sprintf("✅ Event %s updated", p.get("event_id")), nil
	case "calendar_delete_event":
		return fmt.Sprintf("✅ Event %s deleted", p.get("event_id")), nil

	case "notion_search":
		return fmt.Sprintf("No Notion pages found matching: %s", p.get("query")), nil
	case "notion_get_page":
		return fmt.Sprintf("No Notion page found matching: %s", p.get("page_title")), nil
	case "notion_list_pages":
		return "No Notion pages found in your workspace.", nil
	case "notion_create_page":
		return fmt.Sprintf("✅ Notion page created: %s", p.get("title")), nil
	case "notion_append_content":
		return fmt.Sprintf("✅ Content appended to Notion page: %s", p.get("page_title")), nil

	case "docs_create_document":
		return fmt.Sprintf("✅ Document created: %s\nID: doc-%04x", p.get("title"), shortHash(p.get("title"))), nil
	case "docs_append_content":
		return fmt.Sprintf("✅ Content appended to document %s", p.get("document_id")), nil
	case "sheets_create_spreadsheet":
		return fmt.Sprintf("✅ Spreadsheet created: %s\nID: sheet-%04x", p.get("title"), shortHash(p.get("title"))), nil
	case "sheets_add_rows":
		return fmt.Sprintf("✅ Row added to %s in %s", p.get("sheet_name"), p.get("spreadsheet_id")), nil
	case "drive_upload_file":
		return fmt.Sprintf("✅ File uploaded: %s", p.get("file_name")), nil
	case "drive_share_file":
		return fmt.Sprintf("✅ File %s shared with %s as %s", p.get("file_id"), p.get("email"), p.get("role")), nil
	case "drive_list_files":
		return "📁 No files found.", nil
	case "meet_create_meeting":
		return fmt.Sprintf("✅ Meeting created: %s\nJoin: %s", p.get("title"), meetLink(p.get("title")+p.get("start_time"))), nil
	case "slides_create_presentation":
		return fmt.Sprintf("✅ Presentation created: %s", p.get("title")), nil
	case "forms_create_form":
		return fmt.Sprintf("✅ Form created: %s", p.get("title")), nil

	case "github_create_issue", "linear_create_issue", "bugasura_create_issue":
		return fmt.Sprintf("✅ %s issue created: %s", serviceTitles[inv.Service], p.get("title")), nil
	case "github_add_issue_comment", "linear_add_comment", "bugasura_add_comment":
		return fmt.Sprintf("✅ Comment added on %s", serviceTitles[inv.Service]), nil
	case "github_create_repo":
		return fmt.Sprintf("✅ Repository created: %s", p.get("name")), nil
	case "github_create_pr":
		return fmt.Sprintf("✅ Pull request opened: %s (%s → %s)", p.get("title"), p.get("head"), p.get("base")), nil
	case "github_merge_pr":
		return fmt.Sprintf("✅ Pull request #%s merged", p.get("pull_number")), nil
	}

	return fmt.Sprintf("✅ %s completed on %s", inv.Tool, serviceTitles[inv.Service]), nil
}

// checkAuth returns the "not configured" message when inv lacks credentials
func (b *DemoBackend) checkAuth(ctx context.Context, inv *Invocation) (string, bool) {
	title := serviceTitles[inv.Service]
	if title == "" {
		title = inv.Service
	}

	if oauthServices[inv.Service] {
		if len(inv.Config.Credentials) == 0 {
			return fmt.Sprintf("Error: %s is not configured. Please connect your Google account first.", title), false
		}
		if _, err := BearerToken(ctx, &inv.Config, b.Tokens); err != nil {
			return fmt.Sprintf("Error: %s authorization failed: %v. Please reconnect your Google account.", title, err), false
		}
		return "", true
	}

	if inv.Config.APIKey == "" {
		return fmt.Sprintf("Error: %s is not configured. Please connect your %s account first.", title, title), false
	}
	return "", true
}

type params map[string]interface{}

func (p params) get(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
	}
	return fmt.Sprintf("%v", v)
}

func channel(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" {
		return "general"
	}
	return name
}

func shortHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32() & 0xffff
}

func meetLink(seed string) string {
	h := shortHash(seed)
	return fmt.Sprintf("https://meet.google.com/cfx-%04x-%03d", h, h%1000)
}

// UnavailableBackend rejects every tool call. It backs deployments where
// demo responses are disabled and no live client is wired.
type UnavailableBackend struct{}

// Invoke implements Backend
func (UnavailableBackend) Invoke(ctx context.Context, inv Invocation) (string, error) {
	title := serviceTitles[inv.Service]
	if title == "" {
		title = inv.Service
	}
	return "", fmt.Errorf("live %s access is not enabled on this server", title)
}
