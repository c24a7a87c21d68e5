package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve/fieldserve/internal/credential"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func execute(t *testing.T, args []string, opts ...Option) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out, opts...)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func offline(t *testing.T) {
	t.Helper()
	t.Setenv("CREDENTIAL_SECRET", testSecret)
	t.Setenv("REVOCATION_ENABLED", "false")
}

func TestTokenIssueThenInspect(t *testing.T) {
	offline(t)

	out, err := execute(t, []string{"token", "issue", "--user", "u-42", "--role", "role_technician", "--email", "tess@fieldserve.test", "--ttl", "10m"})
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.Len(t, strings.Split(token, "."), 3)

	out, err = execute(t, []string{"token", "inspect", token})
	require.NoError(t, err)
	assert.Contains(t, out, "userId")
	assert.Contains(t, out, "u-42")
	assert.Contains(t, out, "TECHNICIAN")
	assert.Contains(t, out, "tess@fieldserve.test")
}

func TestTokenIssueRejectsBadInput(t *testing.T) {
	offline(t)

	_, err := execute(t, []string{"token", "issue", "--user", "u-1", "--role", "OWNER"})
	assert.Error(t, err)

	_, err = execute(t, []string{"token", "issue", "--role", "ADMIN"})
	assert.Error(t, err)

	t.Setenv("CREDENTIAL_SECRET", "short")
	_, err = execute(t, []string{"token", "issue", "--user", "u-1", "--role", "ADMIN"})
	assert.Error(t, err)
}

func TestTokenInspectReportsFailureKind(t *testing.T) {
	offline(t)

	out, err := execute(t, []string{"token", "issue", "--user", "u-1", "--role", "ADMIN"})
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	tampered := token[:len(token)-2] + "xx"

	out, err = execute(t, []string{"token", "inspect", tampered})
	assert.ErrorIs(t, err, ErrCredentialRejected)
	assert.Contains(t, out, "invalid: bad_signature")

	out, err = execute(t, []string{"token", "inspect", "not-a-token"})
	assert.ErrorIs(t, err, ErrCredentialRejected)
	assert.Contains(t, out, "invalid: malformed")

	past, err := credential.NewAuthority([]byte(testSecret),
		credential.WithIssuer("fieldserve"),
		credential.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	require.NoError(t, err)
	expired, err := past.Issue(credential.ClaimSet{Subject: "a@b.io", UserID: "u-1", Role: "ADMIN"})
	require.NoError(t, err)

	out, err = execute(t, []string{"token", "inspect", expired.Token})
	assert.ErrorIs(t, err, ErrCredentialRejected)
	assert.Contains(t, out, "invalid: expired")
}

func TestTokenInspectSeesRevocations(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("CREDENTIAL_SECRET", testSecret)
	t.Setenv("REDIS_ADDR", mr.Addr())

	out, err := execute(t, []string{"token", "issue", "--user", "u-9", "--role", "CUSTOMER"})
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	_, err = execute(t, []string{"token", "inspect", token})
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	authority, err := credential.NewAuthority([]byte(testSecret),
		credential.WithIssuer("fieldserve"),
		credential.WithRevocations(credential.NewRedisRevocationList(client, "")))
	require.NoError(t, err)
	claims, err := authority.Validate(context.Background(), token)
	require.NoError(t, err)
	require.NoError(t, authority.Revoke(context.Background(), claims))

	out, err = execute(t, []string{"token", "inspect", token})
	assert.ErrorIs(t, err, ErrCredentialRejected)
	assert.Contains(t, out, "invalid: revoked")
}

type stubInspector struct {
	info   *asynq.QueueInfo
	err    error
	queue  string
	closed bool
}

func (s *stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	s.queue = queue
	return s.info, s.err
}

func (s *stubInspector) Close() error {
	s.closed = true
	return nil
}

func TestJobsStats(t *testing.T) {
	offline(t)
	stub := &stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Retry: 1, Processed: 12}}
	var addr string
	factory := WithInspector(func(redisAddr string) QueueInspector {
		addr = redisAddr
		return stub
	})

	out, err := execute(t, []string{"--redis", "10.0.0.5:6379", "jobs", "stats"}, factory)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:6379", addr)
	assert.Equal(t, "default", stub.queue)
	assert.True(t, stub.closed)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED", "PROCESSED", "FAILED", "PAUSED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"default", "4", "0", "0", "1", "0", "12", "0", "false"}, strings.Fields(lines[1]))
}

func TestJobsStatsSurfacesInspectorError(t *testing.T) {
	offline(t)
	stub := &stubInspector{err: errors.New("dial tcp: connection refused")}

	_, err := execute(t, []string{"jobs", "stats", "--queue", "critical"},
		WithInspector(func(string) QueueInspector { return stub }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inspect queue critical")
	assert.Equal(t, "critical", stub.queue)
}
