//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/mkurov/postqueue/internal/testutil"
	"github.com/stretchr/testify/require"
)

// postRecord mirrors the post representation returned by the API.
type postRecord struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      string     `json:"status"`
	ClaimedAt   *time.Time `json:"claimed_at"`
	PostedAt    *time.Time `json:"posted_at"`
	FailedAt    *time.Time `json:"failed_at"`
	ExternalID  *string    `json:"external_id"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// schedulePost creates a post through the API and returns it.
func schedulePost(t *testing.T, client *testutil.Client, content string, scheduledAt time.Time) postRecord {
	t.Helper()

	resp, err := client.POST("/api/v1/posts", map[string]interface{}{
		"content":      content,
		"scheduled_at": scheduledAt.Format(time.RFC3339),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data postRecord `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)
	return result.Data
}

// getPost fetches a post through the API.
func getPost(t *testing.T, client *testutil.Client, id string) postRecord {
	t.Helper()

	resp, err := client.GET("/api/v1/posts/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data postRecord `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// runDispatch triggers one dispatch cycle with the configured secret and
// returns the cycle summary.
func runDispatch(t *testing.T, client *testutil.Client) dispatchSummary {
	t.Helper()

	resp, err := client.WithToken(triggerSecret).POST("/api/v1/dispatch/run", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data dispatchSummary `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

type dispatchSummary struct {
	Candidates int `json:"candidates"`
	Attempted  int `json:"attempted"`
	Posted     int `json:"posted"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Results    []struct {
		PostID     string `json:"post_id"`
		Outcome    string `json:"outcome"`
		ExternalID string `json:"external_id"`
		Error      string `json:"error"`
	} `json:"results"`
}
