package planner

import "sort"

// ServiceToolMap maps a (service, action) pair to the tool that implements it.
// Several actions can share one tool.
var ServiceToolMap = map[string]map[string]string{
	"slack": {
		"send_message":  "slack_send_message",
		"post_update":   "slack_post_update",
		"list_channels": "slack_list_channels",
	},
	"jira": {
		"create_issue": "jira_create_issue",
		"create_bug":   "jira_create_issue",
		"search":       "jira_search_issues",
		"add_comment":  "jira_add_comment",
	},
	"calendar": {
		"create_event":   "calendar_create_event",
		"create_meeting": "calendar_create_event",
		"update_event":   "calendar_update_event",
		"delete_event":   "calendar_delete_event",
	},
	"gmail": {
		"send_email":  "gmail_send_email",
		"read_emails": "gmail_read_latest_emails",
	},
	"notion": {
		"search":         "notion_search",
		"create_page":    "notion_create_page",
		"append_content": "notion_append_content",
		"get_page":       "notion_get_page",
	},
	"docs": {
		"create_document": "docs_create_document",
		"append_content":  "docs_append_content",
	},
	"sheets": {
		"create_spreadsheet": "sheets_create_spreadsheet",
		"add_rows":           "sheets_add_rows",
	},
	"bugasura": {
		"create_issue": "bugasura_create_issue",
		"list_issues":  "bugasura_list_issues",
	},
	"github": {
		"list_repos":   "github_list_repos",
		"get_repo":     "github_get_repo",
		"create_repo":  "github_create_repo",
		"list_issues":  "github_list_issues",
		"create_issue": "github_create_issue",
		"update_issue": "github_update_issue",
		"add_comment":  "github_add_issue_comment",
		"list_prs":     "github_list_prs",
		"create_pr":    "github_create_pr",
		"merge_pr":     "github_merge_pr",
	},
	"linear": {
		"list_teams":   "linear_list_teams",
		"list_issues":  "linear_list_issues",
		"get_issue":    "linear_get_issue",
		"create_issue": "linear_create_issue",
		"update_issue": "linear_update_issue",
		"add_comment":  "linear_add_comment",
		"list_states":  "linear_list_states",
	},
}

// ResolveTool returns the tool for (service, action). Pairs outside the map
// resolve to "<service>_<action>" with known set to false.
func ResolveTool(service, action string) (tool string, known bool) {
	if actions, ok := ServiceToolMap[service]; ok {
		if tool, ok := actions[action]; ok {
			return tool, true
		}
	}
	return service + "_" + action, false
}

// PlannableServices returns the services with a known action set, sorted
func PlannableServices() []string {
	services := make([]string, 0, len(ServiceToolMap))
	for s := range ServiceToolMap {
		services = append(services, s)
	}
	sort.Strings(services)
	return services
}

// ServiceActions returns the sorted actions of service
func ServiceActions(service string) []string {
	actions := make([]string, 0, len(ServiceToolMap[service]))
	for a := range ServiceToolMap[service] {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}
