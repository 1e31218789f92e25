package integrations

// ServiceCommands documents a service for clients
type ServiceCommands struct {
	Description     string   `json:"description"`
	ExampleCommands []string `json:"example_commands"`
}

// SupportedCommands returns example commands per service
func SupportedCommands() map[string]ServiceCommands {
	return map[string]ServiceCommands{
		"jira": {
			Description: "Atlassian Jira for issue tracking",
			ExampleCommands: []string{
				"Create a Jira ticket for [issue description]",
				"Search for Jira issues about [topic]",
				"What are my open Jira tickets?",
			},
		},
		"gmail": {
			Description: "Gmail for email management",
			ExampleCommands: []string{
				"Send an email to [recipient] about [subject]",
				"Check my unread emails",
				"Draft an email to [recipient]",
			},
		},
		"calendar": {
			Description: "Google Calendar for scheduling",
			ExampleCommands: []string{
				"Schedule a meeting [when] with [who]",
				"What's on my calendar today?",
				"Create an event for [description] on [date]",
			},
		},
		"slack": {
			Description: "Slack for team communication",
			ExampleCommands: []string{
				"Send '[message]' to #[channel]",
				"Post an update to #[channel]",
				"Message [person] on Slack",
			},
		},
		"notion": {
			Description: "Notion for documentation",
			ExampleCommands: []string{
				"Search my Notion for [topic]",
				"What's in my [page name] Notion page?",
				"Find Notion docs about [subject]",
			},
		},
		"github": {
			Description: "GitHub for source control",
			ExampleCommands: []string{
				"List my GitHub repositories",
				"Open an issue in [owner]/[repo] about [topic]",
				"Merge pull request #[number] in [repo]",
			},
		},
		"linear": {
			Description: "Linear for issue tracking",
			ExampleCommands: []string{
				"List my Linear teams",
				"Create a Linear issue for [description]",
			},
		},
	}
}
