package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCommand(t *testing.T) {
	t.Run("should print the heuristic plan without a model", func(t *testing.T) {
		setupEnv(t)

		output, err := execute(t, "plan", "post the update to #dev-updates and email bob@example.com",
			"--services", "slack,gmail")
		require.NoError(t, err)

		var plan struct {
			Tasks []struct {
				TaskID     string                 `json:"task_id"`
				Service    string                 `json:"service"`
				Action     string                 `json:"action"`
				Parameters map[string]interface{} `json:"parameters"`
			} `json:"tasks"`
			Total int `json:"total"`
		}
		require.NoError(t, json.Unmarshal([]byte(output), &plan))

		require.Equal(t, 2, plan.Total)
		assert.Equal(t, "slack", plan.Tasks[0].Service)
		assert.Equal(t, "dev-updates", plan.Tasks[0].Parameters["channel"])
		assert.Equal(t, "gmail", plan.Tasks[1].Service)
		assert.Equal(t, "bob@example.com", plan.Tasks[1].Parameters["to"])
	})

	t.Run("should only plan for the given services", func(t *testing.T) {
		setupEnv(t)

		output, err := execute(t, "plan", "post to slack and create a jira ticket", "--services", "jira")
		require.NoError(t, err)

		var plan map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(output), &plan))
		assert.EqualValues(t, 1, plan["total"])
	})

	t.Run("should require a message", func(t *testing.T) {
		setupEnv(t)

		_, err := execute(t, "plan")
		assert.Error(t, err)
	})
}
