//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_RequiresTriggerSecret(t *testing.T) {
	resetPosts(t)
	client := newTestClientWithoutValidation()

	resp, err := client.POST("/api/v1/dispatch/run", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = client.WithToken("wrong-secret").POST("/api/v1/dispatch/run", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDispatch_PublishesDuePosts(t *testing.T) {
	resetPosts(t)
	client := newTestClient(t)

	now := time.Now().UTC()
	due := schedulePost(t, client, "due for publication", now.Add(-time.Minute))
	future := schedulePost(t, client, "not yet due", now.Add(time.Hour))

	before := fakeTwitter.tweetCount()
	summary := runDispatch(t, client)

	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Posted)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, before+1, fakeTwitter.tweetCount())

	published := getPost(t, client, due.ID)
	assert.Equal(t, "posted", published.Status)
	require.NotNil(t, published.ExternalID)
	assert.NotEmpty(t, *published.ExternalID)
	require.NotNil(t, published.PostedAt)

	untouched := getPost(t, client, future.ID)
	assert.Equal(t, "pending", untouched.Status)
}

func TestDispatch_RecordsPlatformRejection(t *testing.T) {
	resetPosts(t)
	client := newTestClient(t)

	rejected := schedulePost(t, client, "rejected content", time.Now().UTC().Add(-time.Minute))

	fakeTwitter.setFailNext(1)
	summary := runDispatch(t, client)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Posted)

	failed := getPost(t, client, rejected.ID)
	assert.Equal(t, "failed", failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "duplicate content")
	require.NotNil(t, failed.FailedAt)
	assert.Nil(t, failed.ExternalID)
}

func TestDispatch_FailureDoesNotBlockOthers(t *testing.T) {
	resetPosts(t)
	client := newTestClient(t)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		schedulePost(t, client, "batch post", now.Add(-time.Minute))
	}

	fakeTwitter.setFailNext(1)
	summary := runDispatch(t, client)

	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Posted)
	assert.Equal(t, 1, summary.Failed)
}

func TestDispatch_EmptyQueue(t *testing.T) {
	resetPosts(t)
	client := newTestClient(t)

	summary := runDispatch(t, client)

	assert.Equal(t, 0, summary.Candidates)
	assert.Equal(t, 0, summary.Attempted)
	assert.Empty(t, summary.Results)
}

func TestDispatch_SecondCycleIsNoOp(t *testing.T) {
	resetPosts(t)
	client := newTestClient(t)

	schedulePost(t, client, "publish once", time.Now().UTC().Add(-time.Minute))

	first := runDispatch(t, client)
	require.Equal(t, 1, first.Posted)

	before := fakeTwitter.tweetCount()
	second := runDispatch(t, client)

	assert.Equal(t, 0, second.Candidates)
	assert.Equal(t, before, fakeTwitter.tweetCount())
}
