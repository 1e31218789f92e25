package integrations

import (
	"sort"

	"github.com/harun/conflux/pkg/toolexecutor"
)

// ToolSpec describes one tool of a service without its handler
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []toolexecutor.ToolParameter
}

func str(name, description string, def interface{}) toolexecutor.ToolParameter {
	return toolexecutor.ToolParameter{Name: name, Type: "string", Description: description, Default: def}
}

func reqStr(name, description string) toolexecutor.ToolParameter {
	return toolexecutor.ToolParameter{Name: name, Type: "string", Description: description, Required: true}
}

func integer(name, description string, def interface{}) toolexecutor.ToolParameter {
	return toolexecutor.ToolParameter{Name: name, Type: "integer", Description: description, Default: def}
}

func reqInt(name, description string) toolexecutor.ToolParameter {
	return toolexecutor.ToolParameter{Name: name, Type: "integer", Description: description, Required: true}
}

func boolean(name, description string, def bool) toolexecutor.ToolParameter {
	return toolexecutor.ToolParameter{Name: name, Type: "boolean", Description: description, Default: def}
}

var (
	ownerParam = reqStr("owner", "Repository owner (username or organization)")
	repoParam  = reqStr("repo", "Repository name")
)

// catalog is the fixed tool set per service
var catalog = map[string][]ToolSpec{
	"slack": {
		{"slack_send_message", "Send a message to a Slack channel.", []toolexecutor.ToolParameter{
			str("channel", "Channel name (with or without #) or channel ID", "general"),
			str("message", "Message content to send", "Hello from Conflux!"),
			str("text", "Alternative message field (alias for message)", nil),
		}},
		{"slack_post_update", "Post a formatted update with a title to a Slack channel.", []toolexecutor.ToolParameter{
			reqStr("channel", "Channel name (with or without #)"),
			reqStr("title", "Update title/heading"),
			reqStr("content", "Update content/body"),
		}},
		{"slack_list_channels", "List the Slack channels the bot can post to.", nil},
	},
	"jira": {
		{"jira_create_issue", "Create a new Jira issue.", []toolexecutor.ToolParameter{
			reqStr("summary", "Brief title/summary of the issue"),
			str("description", "Detailed description of the issue", nil),
			str("project_key", "Jira project key", "CONFLUX"),
			str("issue_type", "Issue type: Task, Bug, Story, etc.", "Task"),
		}},
		{"jira_search_issues", "Search Jira issues with JQL or plain text.", []toolexecutor.ToolParameter{
			reqStr("query", "JQL query or simple text search"),
			integer("max_results", "Maximum number of results", 10),
		}},
		{"jira_get_my_issues", "List open Jira issues assigned to the current user.", nil},
		{"jira_add_comment", "Add a comment to a Jira issue.", []toolexecutor.ToolParameter{
			reqStr("issue_key", "Issue key (e.g., 'PROJ-12')"),
			reqStr("comment", "Comment text to add"),
		}},
	},
	"gmail": {
		{"gmail_send_email", "Send an email.", []toolexecutor.ToolParameter{
			str("to", "Recipient email address", "user@example.com"),
			str("subject", "Email subject line", "Message from Conflux"),
			str("body", "Email body content", "Hello!"),
			str("message", "Alternative body field (alias for body)", nil),
		}},
		{"gmail_search_emails", "Search emails with a Gmail query.", []toolexecutor.ToolParameter{
			str("query", "Search query (e.g., 'from:john subject:meeting')", "is:inbox"),
			integer("max_results", "Maximum number of results", 10),
		}},
		{"gmail_get_unread", "List unread emails.", nil},
		{"gmail_create_draft", "Create an email draft.", []toolexecutor.ToolParameter{
			str("to", "Recipient email address", "user@example.com"),
			str("subject", "Email subject line", "Draft from Conflux"),
			str("body", "Email body content", nil),
		}},
		{"gmail_read_latest_emails", "Read the most recent emails in the inbox.", []toolexecutor.ToolParameter{
			integer("count", "Number of emails to read", 5),
		}},
	},
	"calendar": {
		{"calendar_create_event", "Create a Google Calendar event with a Meet link.", []toolexecutor.ToolParameter{
			reqStr("summary", "Event title/name"),
			str("description", "Event description", nil),
			reqStr("start_time", "Start time (e.g., '2025-12-16 14:00' or 'tomorrow at 2pm')"),
			integer("duration_minutes", "Duration in minutes", 60),
			str("attendees", "Comma-separated email addresses of attendees", nil),
		}},
		{"calendar_view_upcoming", "List upcoming calendar events.", []toolexecutor.ToolParameter{
			integer("days", "Number of days to look ahead", 7),
		}},
		{"calendar_today", "Show today's calendar events.", nil},
		{"calendar_update_event", "Update an existing calendar event.", []toolexecutor.ToolParameter{
			reqStr("event_id", "The event ID to update"),
			str("summary", "New title (leave empty to keep)", nil),
			str("start_time", "New start time (leave empty to keep)", nil),
			integer("duration_minutes", "New duration in minutes", nil),
		}},
		{"calendar_delete_event", "Delete a calendar event.", []toolexecutor.ToolParameter{
			reqStr("event_id", "The event ID to delete"),
		}},
	},
	"notion": {
		{"notion_search", "Search Notion pages and content.", []toolexecutor.ToolParameter{
			reqStr("query", "Search query to find pages or content"),
		}},
		{"notion_get_page", "Get the content of a Notion page by title.", []toolexecutor.ToolParameter{
			reqStr("page_title", "Title or partial title of the page to retrieve"),
		}},
		{"notion_list_pages", "List recent Notion pages.", nil},
		{"notion_create_page", "Create a Notion page.", []toolexecutor.ToolParameter{
			reqStr("title", "Page title"),
			str("content", "Initial page content", nil),
		}},
		{"notion_append_content", "Append content to a Notion page.", []toolexecutor.ToolParameter{
			str("page_title", "Title of the page to append to", "Conflux Activity Log"),
			reqStr("content", "Content to append"),
		}},
	},
	"docs": {
		{"docs_create_document", "Create a Google Doc.", []toolexecutor.ToolParameter{
			reqStr("title", "Document title"),
			str("content", "Initial document content (plain text)", nil),
		}},
		{"docs_append_content", "Append content to a Google Doc.", []toolexecutor.ToolParameter{
			reqStr("document_id", "The document ID to append content to"),
			reqStr("content", "Content to append to the document"),
		}},
	},
	"sheets": {
		{"sheets_create_spreadsheet", "Create a Google Sheets spreadsheet.", []toolexecutor.ToolParameter{
			reqStr("title", "Spreadsheet title"),
			str("headers", "Comma-separated header values (optional)", nil),
		}},
		{"sheets_add_rows", "Append a row to a spreadsheet.", []toolexecutor.ToolParameter{
			reqStr("spreadsheet_id", "The spreadsheet ID"),
			str("sheet_name", "The name of the sheet/tab", "Sheet1"),
			reqStr("values", "Comma-separated values for the row (e.g., 'John,Doe,john@email.com')"),
		}},
	},
	"drive": {
		{"drive_upload_file", "Create a file in Google Drive.", []toolexecutor.ToolParameter{
			reqStr("file_name", "Name of the file to create"),
			str("mime_type", "MIME type of the file", "text/plain"),
			reqStr("content", "File content as text or base64-encoded string"),
		}},
		{"drive_share_file", "Share a Drive file with a user.", []toolexecutor.ToolParameter{
			reqStr("file_id", "The file ID to share"),
			reqStr("email", "Email address of the user to share with"),
			str("role", "Permission role: reader, commenter or writer", "reader"),
		}},
		{"drive_list_files", "List files in Google Drive.", []toolexecutor.ToolParameter{
			str("query", "Search query (optional)", nil),
			integer("max_results", "Maximum number of files to return", 10),
		}},
	},
	"meet": {
		{"meet_create_meeting", "Create a Google Meet meeting.", []toolexecutor.ToolParameter{
			reqStr("title", "Meeting title"),
			reqStr("start_time", "Start datetime in ISO format (e.g., '2025-12-18T14:00:00')"),
			str("end_time", "End datetime in ISO format; defaults to 1 hour after start", nil),
			str("attendees", "Comma-separated email addresses of attendees (optional)", nil),
			str("description", "Meeting description/agenda (optional)", nil),
		}},
	},
	"slides": {
		{"slides_create_presentation", "Create a Google Slides presentation.", []toolexecutor.ToolParameter{
			reqStr("title", "Presentation title"),
			str("bullet_points", "Slide bullet points separated by '|'", nil),
		}},
	},
	"forms": {
		{"forms_create_form", "Create a Google Form.", []toolexecutor.ToolParameter{
			reqStr("title", "Form title"),
			str("questions", "Questions separated by '|'", nil),
		}},
	},
	"github": {
		{"github_list_repos", "List GitHub repositories for the authenticated user.", []toolexecutor.ToolParameter{
			str("visibility", "Filter by visibility: all, public, private", "all"),
			str("sort", "Sort by: created, updated, pushed, full_name", "updated"),
			integer("per_page", "Number of repos to return (max 100)", 10),
		}},
		{"github_get_repo", "Get repository details.", []toolexecutor.ToolParameter{ownerParam, repoParam}},
		{"github_create_repo", "Create a GitHub repository.", []toolexecutor.ToolParameter{
			reqStr("name", "Repository name"),
			str("description", "Repository description", nil),
			boolean("private", "Whether the repo should be private", false),
			boolean("auto_init", "Initialize with a README", true),
		}},
		{"github_list_issues", "List issues of a repository.", []toolexecutor.ToolParameter{
			ownerParam, repoParam,
			str("state", "Filter by state: open, closed, all", "open"),
			integer("per_page", "Number of issues to return (max 100)", 10),
		}},
		{"github_create_issue", "Create an issue in a repository.", []toolexecutor.ToolParameter{
			ownerParam, repoParam,
			reqStr("title", "Issue title"),
			str("body", "Issue body/description", nil),
			str("labels", "Comma-separated labels", nil),
		}},
		{"github_update_issue", "Update an issue.", []toolexecutor.ToolParameter{
			ownerParam, repoParam,
			reqInt("issue_number", "Issue number to update"),
			str("title", "New title (leave empty to keep)", nil),
			str("body", "New body (leave empty to keep)", nil),
			str("state", "New state: open or closed", nil),
		}},
		{"github_add_issue_comment", "Comment on an issue.", []toolexecutor.ToolParameter{
			ownerParam, repoParam,
			reqInt("issue_number", "Issue number"),
			reqStr("body", "Comment body"),
		}},
		{"github_list_prs", "List pull requests of a repository.", []toolexecutor.ToolParameter{
			ownerParam, repoParam,
			str("state", "Filter by state: open, closed, all", "open"),
			integer("per_page", "Number of PRs to return", 10),
		}},
		{"github_create_pr", "Open a pull request.", []toolexecutor.ToolParameter{
			ownerParam, repoParam,
			reqStr("title", "Pull request title"),
			reqStr("head", "Branch containing changes (e.g., 'feature-branch')"),
			str("base", "Branch to merge into", "main"),
			str("body", "Pull request description", nil),
		}},
		{"github_merge_pr", "Merge a pull request.", []toolexecutor.ToolParameter{
			ownerParam, repoParam,
			reqInt("pull_number", "Pull request number"),
			str("commit_title", "Title for merge commit", nil),
			str("merge_method", "Merge method: merge, squash, rebase", "merge"),
		}},
	},
	"linear": {
		{"linear_list_teams", "List Linear teams.", nil},
		{"linear_list_issues", "List Linear issues.", []toolexecutor.ToolParameter{
			str("team_id", "Team ID to filter issues (optional)", nil),
			str("project_name", "Project name to filter issues (optional)", nil),
			str("state", "Filter by state name (optional)", nil),
			integer("limit", "Maximum number of issues to return", 10),
		}},
		{"linear_get_issue", "Get a Linear issue.", []toolexecutor.ToolParameter{
			reqStr("issue_id", "Issue ID or issue identifier (e.g., 'ABC-123')"),
		}},
		{"linear_create_issue", "Create a Linear issue.", []toolexecutor.ToolParameter{
			reqStr("title", "Issue title"),
			str("description", "Issue description (markdown supported)", nil),
			reqStr("team_id", "Team ID to create the issue in"),
			integer("priority", "Priority: 0 none, 1 urgent, 2 high, 3 medium, 4 low", 0),
			str("state_id", "State ID for the issue (optional)", nil),
		}},
		{"linear_update_issue", "Update a Linear issue.", []toolexecutor.ToolParameter{
			reqStr("issue_id", "Issue ID to update"),
			str("title", "New title (leave empty to keep)", nil),
			str("description", "New description (leave empty to keep)", nil),
			str("state_id", "New state ID (leave empty to keep)", nil),
			integer("priority", "New priority (-1 to keep)", -1),
		}},
		{"linear_add_comment", "Comment on a Linear issue.", []toolexecutor.ToolParameter{
			reqStr("issue_id", "Issue ID to comment on"),
			reqStr("body", "Comment body (markdown supported)"),
		}},
		{"linear_list_states", "List workflow states of a Linear team.", []toolexecutor.ToolParameter{
			reqStr("team_id", "Team ID to get workflow states for"),
		}},
	},
	"bugasura": {
		{"bugasura_create_issue", "Create a Bugasura issue.", []toolexecutor.ToolParameter{
			reqStr("title", "Title/summary of the bug or issue"),
			str("description", "Detailed description of the issue", nil),
			str("severity", "Severity: Low, Medium, High, Critical", "Medium"),
		}},
		{"bugasura_list_issues", "List Bugasura issues.", []toolexecutor.ToolParameter{
			integer("max_results", "Maximum number of issues to return", 10),
		}},
		{"bugasura_add_comment", "Comment on a Bugasura issue.", []toolexecutor.ToolParameter{
			reqStr("issue_key", "Issue key (e.g., 'LOC-5')"),
			reqStr("comment", "Comment text to add"),
		}},
		{"bugasura_get_issue", "Get a Bugasura issue.", []toolexecutor.ToolParameter{
			reqStr("issue_key", "Issue key (e.g., 'LOC-5')"),
		}},
	},
}

// toolOwner maps every catalogued tool to its service
var toolOwner = func() map[string]string {
	owners := make(map[string]string)
	for service, specs := range catalog {
		for _, spec := range specs {
			owners[spec.Name] = service
		}
	}
	return owners
}()

// SupportedServices returns every service with a tool set, sorted
func SupportedServices() []string {
	services := make([]string, 0, len(catalog))
	for s := range catalog {
		services = append(services, s)
	}
	sort.Strings(services)
	return services
}

// ServiceTools returns the tool specs of service
func ServiceTools(service string) []ToolSpec {
	return catalog[service]
}

// IsSupported reports whether service has a tool set
func IsSupported(service string) bool {
	_, ok := catalog[service]
	return ok
}
